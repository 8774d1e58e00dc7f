package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/jitr"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Deal metrics
	DealsTotal    metric.Int64Counter
	DealsDuration metric.Float64Histogram

	// Verifier metrics
	VerificationsTotal metric.Int64Counter

	// Activation queue metrics
	NotificationsReceivedTotal metric.Int64Counter
	NotificationsDeletedTotal  metric.Int64Counter
	ReceiveErrorsTotal         metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.DealsTotal, _ = meter.Int64Counter(
		"jitr.deals.total",
		metric.WithDescription("Total number of deals by pipeline and outcome"),
		metric.WithUnit("{deal}"),
	)

	m.DealsDuration, _ = meter.Float64Histogram(
		"jitr.deals.duration",
		metric.WithDescription("Duration of deals"),
		metric.WithUnit("ms"),
	)

	m.VerificationsTotal, _ = meter.Int64Counter(
		"jitr.verifications.total",
		metric.WithDescription("Total number of verifier judgements by result"),
		metric.WithUnit("{verification}"),
	)

	m.NotificationsReceivedTotal, _ = meter.Int64Counter(
		"jitr.notifications.received.total",
		metric.WithDescription("Total number of activation notifications received from the queue"),
		metric.WithUnit("{message}"),
	)

	m.NotificationsDeletedTotal, _ = meter.Int64Counter(
		"jitr.notifications.deleted.total",
		metric.WithDescription("Total number of activation notifications deleted from the queue"),
		metric.WithUnit("{message}"),
	)

	m.ReceiveErrorsTotal, _ = meter.Int64Counter(
		"jitr.notifications.receive.errors.total",
		metric.WithDescription("Total number of failed queue receives"),
		metric.WithUnit("{error}"),
	)

	return m
}

// RecordDeal records the outcome and duration of a deal.
func (m *Metrics) RecordDeal(ctx context.Context, pipeline, outcome string, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("outcome", outcome),
	)

	m.DealsTotal.Add(ctx, 1, attrs)
	m.DealsDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
}

// RecordVerification records a verifier judgement.
func (m *Metrics) RecordVerification(ctx context.Context, result string) {
	m.VerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
