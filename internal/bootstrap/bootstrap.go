package bootstrap

import (
	"context"
	"fmt"
)

// Bootstrap creates the bundle bucket, the activation queue and the journal table.
// If CleanResources is true, deletes existing resources first to ensure clean state
// If CleanResources is false, creates resources only if they don't exist (preserves data)
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("S3Client is required")
	}
	if cfg.SQSClient == nil {
		return nil, fmt.Errorf("SQSClient is required")
	}
	if cfg.DynamoClient == nil {
		return nil, fmt.Errorf("DynamoClient is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.BucketName == "" {
		cfg.BucketName = fmt.Sprintf("%s-jitr-certificates", cfg.Environment)
	}

	resources := &Resources{}

	if err := CreateBucket(ctx, cfg.S3Client, cfg.BucketName, cfg.CleanResources); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	resources.BucketName = cfg.BucketName

	queueURL, deadLetterURL, err := CreateActivationQueue(ctx, cfg.SQSClient, cfg.Environment, cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS queues: %w", err)
	}
	resources.ActivationQueueURL = queueURL
	resources.ActivationDeadLetterURL = deadLetterURL

	journalTable, err := CreateJournalTable(ctx, cfg.DynamoClient, cfg.Environment, cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB table: %w", err)
	}
	resources.JournalTable = journalTable

	return resources, nil
}

// Cleanup deletes all resources created by Bootstrap
func Cleanup(ctx context.Context, cfg Config, res *Resources) error {
	if err := DeleteQueues(ctx, cfg.SQSClient, res.ActivationQueueURL, res.ActivationDeadLetterURL); err != nil {
		return fmt.Errorf("failed to delete queues: %w", err)
	}

	if err := deleteTableIfExists(ctx, cfg.DynamoClient, res.JournalTable); err != nil {
		return fmt.Errorf("failed to delete journal table: %w", err)
	}

	if err := deleteBucketIfExists(ctx, cfg.S3Client, res.BucketName); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	return nil
}
