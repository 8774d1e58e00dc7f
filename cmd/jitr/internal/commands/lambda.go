package commands

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfeidau/jitr/internal/logger"
)

// LambdaCmd runs one of the pipelines as an AWS Lambda function.
type LambdaCmd struct {
	Registration LambdaRegistrationCmd `cmd:"" help:"Serve CA registration requests"`
	Activation   LambdaActivationCmd   `cmd:"" help:"Serve device activation notifications from SQS"`
}

type LambdaRegistrationCmd struct {
	Dealer DealerFlags `embed:""`
	AWS    AWSFlags    `embed:"" prefix:"aws-"`
}

func (c *LambdaRegistrationCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	defer setupTelemetry(ctx, c.Dealer.Telemetry, "jitr-registration", globals.Version)()

	handlers, err := newHandlers(ctx, c.Dealer, c.AWS)
	if err != nil {
		return err
	}

	log.Info().Str("version", globals.Version).Msg("Starting registration function")

	lambda.StartWithOptions(handlers.RegistrationLambda(), lambda.WithContext(log.WithContext(ctx)))

	return nil
}

type LambdaActivationCmd struct {
	Dealer DealerFlags `embed:""`
	AWS    AWSFlags    `embed:"" prefix:"aws-"`
}

func (c *LambdaActivationCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	defer setupTelemetry(ctx, c.Dealer.Telemetry, "jitr-activation", globals.Version)()

	handlers, err := newHandlers(ctx, c.Dealer, c.AWS)
	if err != nil {
		return err
	}

	log.Info().Str("version", globals.Version).Msg("Starting activation function")

	lambda.StartWithOptions(handlers.ActivationLambda(), lambda.WithContext(log.WithContext(ctx)))

	return nil
}
