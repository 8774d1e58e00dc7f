// Package handler adapts transport events onto the registration and
// activation dealers and turns their results into responses.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/jitr/internal/activation"
	"github.com/wolfeidau/jitr/internal/dealer"
	httpmiddleware "github.com/wolfeidau/jitr/internal/http"
	"github.com/wolfeidau/jitr/internal/pki"
	"github.com/wolfeidau/jitr/internal/platform"
	"github.com/wolfeidau/jitr/internal/registration"
	"github.com/wolfeidau/jitr/internal/schema"
	"github.com/wolfeidau/jitr/internal/store"
	"github.com/wolfeidau/jitr/internal/telemetry"
	"github.com/wolfeidau/jitr/internal/verifiers"
)

// Response is the JSON envelope returned by every boundary.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

// Config wires the handlers to the platform and the journal.
type Config struct {
	Bucket    registration.Bucket
	Verifiers verifiers.Source

	Registrar platform.CertificateAuthorityRegistrar
	Store     platform.ObjectStore
	Registry  platform.DeviceRegistry
	Invoker   platform.Invoker
	Generator pki.Generator

	Journal store.JournalStore

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers runs one deal per event.
type Handlers struct {
	cfg Config
}

// New creates Handlers.
func New(cfg Config) *Handlers {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Verifiers == nil {
		cfg.Verifiers = verifiers.JSONSource("")
	}
	return &Handlers{cfg: cfg}
}

// Register runs the CA registration pipeline for a raw registration event. The
// returned error is the deal error, already reflected in the Response.
func (h *Handlers) Register(ctx context.Context, raw []byte) (Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "jitr.registration")
	defer span.End()

	entry := h.newEntry(ctx, store.PipelineRegistration)

	cargo, err := h.register(ctx, raw, entry)

	return h.respond(ctx, span, entry, cargo, err), err
}

func (h *Handlers) register(ctx context.Context, raw []byte, entry *store.JournalEntry) (registration.Cargo, error) {
	evt, err := schema.DecodeRegistrationEvent(raw)
	if err != nil {
		return registration.Cargo{}, dealer.Inputf("%v", err)
	}

	entry.VerifierName = evt.VerifierName

	// the allow-list is consulted before any platform call
	if err := verifiers.Check(ctx, h.cfg.Verifiers, evt.VerifierName); err != nil {
		return registration.Cargo{}, err
	}

	cargo, err := registration.New(registration.Props{
		CsrSubjects:  evt.CsrSubjects,
		VerifierName: evt.VerifierName,
		Bucket:       h.cfg.Bucket,
		Registrar:    h.cfg.Registrar,
		Store:        h.cfg.Store,
		Generator:    h.cfg.Generator,
	}).Deal(ctx)

	entry.CertificateID = cargo.CertificateID

	return cargo, err
}

// Activate runs the device activation pipeline for a raw activation event. The
// returned error is the deal error, already reflected in the Response.
func (h *Handlers) Activate(ctx context.Context, raw []byte) (Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "jitr.activation")
	defer span.End()

	entry := h.newEntry(ctx, store.PipelineActivation)

	cargo, err := h.activate(ctx, raw, entry)

	return h.respond(ctx, span, entry, cargo, err), err
}

func (h *Handlers) activate(ctx context.Context, raw []byte, entry *store.JournalEntry) (activation.Cargo, error) {
	evt, err := schema.DecodeActivationEvent(raw)
	if err != nil {
		return activation.Cargo{}, dealer.Inputf("%v", err)
	}

	entry.CertificateID = evt.CertificateID

	cargo, err := activation.New(activation.Props{
		DeviceCertificateID: evt.CertificateID,
		Registry:            h.cfg.Registry,
		Invoker:             h.cfg.Invoker,
	}).Deal(ctx)

	entry.VerifierName = cargo.VerifierName

	recordVerification(ctx, cargo, err)

	return cargo, err
}

// reject records a failure that happened before a payload could be extracted.
func (h *Handlers) reject(ctx context.Context, pipeline store.Pipeline, err error) (Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "jitr."+string(pipeline))
	defer span.End()

	return h.respond(ctx, span, h.newEntry(ctx, pipeline), nil, err), err
}

func recordVerification(ctx context.Context, cargo activation.Cargo, err error) {
	switch {
	case errors.Is(err, dealer.ErrVerification):
		telemetry.GetMetrics().RecordVerification(ctx, "rejected")
	case err == nil && cargo.VerifierName != "":
		telemetry.GetMetrics().RecordVerification(ctx, "verified")
	case err == nil:
		telemetry.GetMetrics().RecordVerification(ctx, "skipped")
	}
}

func (h *Handlers) newEntry(ctx context.Context, pipeline store.Pipeline) *store.JournalEntry {
	return &store.JournalEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Pipeline:  pipeline,
		RequestID: requestID(ctx),
		CreatedAt: h.cfg.Now().UTC(),
	}
}

// respond classifies the deal result, records it and builds the Response.
func (h *Handlers) respond(ctx context.Context, span trace.Span, entry *store.JournalEntry, cargo any, err error) Response {
	resp := Response{StatusCode: http.StatusOK, Body: cargo}
	entry.Outcome = store.OutcomeSuccess
	entry.Status = http.StatusOK

	if err != nil {
		failure := dealer.Classify(err)
		resp = Response{StatusCode: failure.Status, Body: failure}
		entry.Outcome = string(failure.Kind)
		entry.Status = failure.Status
		entry.Message = failure.Message

		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Kind))
	}

	span.SetAttributes(
		attribute.String("jitr.pipeline", string(entry.Pipeline)),
		attribute.String("jitr.outcome", entry.Outcome),
		attribute.String("jitr.certificate_id", entry.CertificateID),
	)

	telemetry.GetMetrics().RecordDeal(ctx, string(entry.Pipeline), entry.Outcome, entry.CreatedAt)

	logger := zerolog.Ctx(ctx).With().
		Str("entry_id", entry.ID).
		Str("pipeline", string(entry.Pipeline)).
		Str("certificate_id", entry.CertificateID).
		Str("outcome", entry.Outcome).
		Int("status", entry.Status).
		Logger()

	if err != nil {
		logger.Warn().Str("reason", entry.Message).Msg("deal failed")
	} else {
		logger.Info().Msg("deal completed")
	}

	if h.cfg.Journal != nil {
		// the response never depends on the journal
		if jerr := h.cfg.Journal.Append(context.WithoutCancel(ctx), entry); jerr != nil {
			logger.Error().Err(jerr).Msg("failed to append journal entry")
		}
	}

	return resp
}

func requestID(ctx context.Context) string {
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}
