package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfeidau/jitr/internal/bootstrap"
	"github.com/wolfeidau/jitr/internal/logger"
)

// BootstrapCmd creates the bucket, activation queue and journal table, usually against LocalStack.
type BootstrapCmd struct {
	Environment string `help:"environment name used as resource prefix" default:"dev"`
	BucketName  string `help:"bucket for CA certificate bundles, derived from the environment when empty" default:"" env:"BUCKET_NAME"`
	Clean       bool   `help:"delete existing resources before creating them" default:"false"`

	AWS AWSFlags `embed:"" prefix:"aws-"`
}

func (c *BootstrapCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	awsCfg, err := loadAWSConfig(ctx, c.AWS)
	if err != nil {
		return err
	}

	cfg := bootstrap.Config{
		S3Client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = c.AWS.Endpoint != ""
		}),
		SQSClient:      sqs.NewFromConfig(awsCfg),
		DynamoClient:   dynamodb.NewFromConfig(awsCfg),
		Environment:    c.Environment,
		BucketName:     c.BucketName,
		CleanResources: c.Clean,
	}

	resources, err := bootstrap.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to bootstrap infrastructure: %w", err)
	}

	log.Info().
		Str("bucket", resources.BucketName).
		Str("activation_queue", resources.ActivationQueueURL).
		Str("dead_letter_queue", resources.ActivationDeadLetterURL).
		Str("journal_table", resources.JournalTable).
		Msg("Infrastructure ready")

	fmt.Printf("BUCKET_NAME=%s\n", resources.BucketName)
	fmt.Printf("JITR_ACTIVATION_QUEUE_URL=%s\n", resources.ActivationQueueURL)
	fmt.Printf("JITR_JOURNAL_TABLE=%s\n", resources.JournalTable)

	return nil
}
