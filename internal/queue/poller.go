// Package queue consumes device activation notifications from SQS.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/telemetry"
)

const (
	sqsMaxMessages     = 10 // SQS maximum messages per ReceiveMessage call
	sqsWaitTimeSeconds = 20 // SQS maximum long poll
)

// SQSAPI is the subset of the SQS client used by the Poller.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one message body, returning the deal error if any.
type Handler func(ctx context.Context, body []byte) error

// Option configures a Poller.
type Option func(*Poller)

// WithBackOff sets the backoff factory used when receiving fails.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Poller) {
		p.newBackOff = newBackOff
	}
}

// WithMaxElapsedTime bounds how long receive failures are retried before Run gives up.
func WithMaxElapsedTime(d time.Duration) Option {
	return func(p *Poller) {
		p.maxElapsed = d
	}
}

// WithWaitTime sets the long poll wait in seconds.
func WithWaitTime(seconds int32) Option {
	return func(p *Poller) {
		p.waitTime = seconds
	}
}

// Poller long polls a queue and hands each message to a Handler, one goroutine
// per message. A message is deleted once handled, unless the handler failed with
// a processing error, in which case it is left to become visible again.
type Poller struct {
	client   SQSAPI
	queueURL string
	handle   Handler

	waitTime   int32
	maxElapsed time.Duration
	newBackOff func() backoff.BackOff
}

// NewPoller creates a Poller for queueURL.
func NewPoller(client SQSAPI, queueURL string, handle Handler, opts ...Option) *Poller {
	p := &Poller{
		client:     client,
		queueURL:   queueURL,
		handle:     handle,
		waitTime:   sqsWaitTimeSeconds,
		maxElapsed: 5 * time.Minute,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. It returns nil on cancellation and an error
// once receiving has failed for longer than the configured retry window.
func (p *Poller) Run(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Str("queue_url", p.queueURL).Msg("activation poller started")

	for ctx.Err() == nil {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Info().Msg("activation poller stopped")

	return nil
}

// Poll receives one batch, handles every message and waits for them to finish.
// It returns the number of messages received.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	messages, err := p.receive(ctx)
	if err != nil {
		return 0, err
	}

	if len(messages) == 0 {
		return 0, nil
	}

	telemetry.GetMetrics().NotificationsReceivedTotal.Add(ctx, int64(len(messages)))

	var wg sync.WaitGroup
	for _, msg := range messages {
		wg.Add(1)
		go func(msg sqstypes.Message) {
			defer wg.Done()
			p.process(ctx, msg)
		}(msg)
	}
	wg.Wait()

	return len(messages), nil
}

func (p *Poller) receive(ctx context.Context) ([]sqstypes.Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: sqsMaxMessages,
		WaitTimeSeconds:     p.waitTime,
	}

	out, err := backoff.Retry(ctx, func() (*sqs.ReceiveMessageOutput, error) {
		return p.client.ReceiveMessage(ctx, input)
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(p.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().ReceiveErrorsTotal.Add(ctx, 1)
			zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Msg("failed to receive activation notifications")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	return out.Messages, nil
}

func (p *Poller) process(ctx context.Context, msg sqstypes.Message) {
	logger := zerolog.Ctx(ctx).With().Str("message_id", aws.ToString(msg.MessageId)).Logger()
	ctx = logger.WithContext(ctx)

	err := p.handle(ctx, []byte(aws.ToString(msg.Body)))
	if Retryable(err) {
		logger.Warn().Err(err).Msg("activation left on queue for redelivery")
		return
	}

	// a cancelled poller still removes messages it has finished with
	if err := p.delete(context.WithoutCancel(ctx), msg); err != nil {
		logger.Error().Err(err).Msg("failed to delete activation notification")
		return
	}

	telemetry.GetMetrics().NotificationsDeletedTotal.Add(ctx, 1)
}

func (p *Poller) delete(ctx context.Context, msg sqstypes.Message) error {
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}

// Retryable reports whether a deal error is worth redelivering. Input,
// missing information, missing resources and verification failures will not
// change on a retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return dealer.Classify(err).Kind == dealer.KindProcessing
}
