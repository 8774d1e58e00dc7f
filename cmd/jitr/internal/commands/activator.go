package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfeidau/jitr/internal/logger"
	"github.com/wolfeidau/jitr/internal/queue"
)

// ActivatorCmd consumes device activation notifications from SQS.
type ActivatorCmd struct {
	QueueURL string `help:"SQS queue receiving activation notifications" env:"JITR_ACTIVATION_QUEUE_URL"`
	WaitTime int32  `help:"long poll wait in seconds" default:"20"`

	Dealer DealerFlags `embed:""`
	AWS    AWSFlags    `embed:"" prefix:"aws-"`
}

func (c *ActivatorCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if c.QueueURL == "" {
		return errors.New("queue URL is required (--queue-url or JITR_ACTIVATION_QUEUE_URL)")
	}

	log.Info().Str("version", globals.Version).Str("queue_url", c.QueueURL).Msg("Starting activator")

	defer setupTelemetry(ctx, c.Dealer.Telemetry, "jitr-activator", globals.Version)()

	handlers, err := newHandlers(ctx, c.Dealer, c.AWS)
	if err != nil {
		return err
	}

	awsCfg, err := loadAWSConfig(ctx, c.AWS)
	if err != nil {
		return err
	}

	poller := queue.NewPoller(sqs.NewFromConfig(awsCfg), c.QueueURL, func(ctx context.Context, body []byte) error {
		_, err := handlers.Activate(ctx, body)
		return err
	}, queue.WithWaitTime(c.WaitTime))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return poller.Run(log.WithContext(ctx))
}
