package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// maxReceiveCount is how many processing failures a notification survives
// before it is moved to the dead letter queue.
const maxReceiveCount = 5

// CreateActivationQueue creates the activation queue and its dead letter queue,
// returning both URLs.
// If cleanResources is true, deletes existing queues first to ensure clean state
// If cleanResources is false, reuses existing queues (preserves data)
func CreateActivationQueue(ctx context.Context, client *sqs.Client, env string, cleanResources bool) (queueURL, deadLetterURL string, err error) {
	deadLetterURL, err = createQueue(ctx, client, fmt.Sprintf("%s-jitr-activation-dlq", env), nil, cleanResources)
	if err != nil {
		return "", "", err
	}

	attrs, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(deadLetterURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get dead letter queue arn: %w", err)
	}

	redrive, err := json.Marshal(map[string]any{
		"deadLetterTargetArn": attrs.Attributes[string(types.QueueAttributeNameQueueArn)],
		"maxReceiveCount":     maxReceiveCount,
	})
	if err != nil {
		return "", "", err
	}

	queueURL, err = createQueue(ctx, client, fmt.Sprintf("%s-jitr-activation", env), map[string]string{
		string(types.QueueAttributeNameVisibilityTimeout): "120",
		string(types.QueueAttributeNameRedrivePolicy):     string(redrive),
	}, cleanResources)
	if err != nil {
		return "", "", err
	}

	return queueURL, deadLetterURL, nil
}

func createQueue(ctx context.Context, client *sqs.Client, queueName string, attributes map[string]string, cleanResources bool) (string, error) {
	if cleanResources {
		if err := deleteQueueIfExists(ctx, client, queueName); err != nil {
			return "", fmt.Errorf("failed to delete existing queue %s: %w", queueName, err)
		}
	}

	createResp, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(queueName),
		Attributes: attributes,
	})
	if err != nil {
		// If queue already exists and we're not cleaning, get its URL instead
		if !cleanResources && (strings.Contains(err.Error(), "QueueAlreadyExists") || strings.Contains(err.Error(), "already exists")) {
			getURLResp, getErr := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
				QueueName: aws.String(queueName),
			})
			if getErr != nil {
				return "", fmt.Errorf("failed to get existing queue %s: %w", queueName, getErr)
			}
			return aws.ToString(getURLResp.QueueUrl), nil
		}
		return "", fmt.Errorf("failed to create queue %s: %w", queueName, err)
	}

	return aws.ToString(createResp.QueueUrl), nil
}

// deleteQueueIfExists attempts to delete a queue if it exists
func deleteQueueIfExists(ctx context.Context, client *sqs.Client, queueName string) error {
	getURLResp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NonExistentQueue") || strings.Contains(err.Error(), "does not exist") {
			return nil
		}
		return err
	}

	_, err = client.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: getURLResp.QueueUrl,
	})
	if err != nil {
		return err
	}

	// SQS deletion is eventually consistent
	time.Sleep(2 * time.Second)

	return nil
}

// DeleteQueues removes the given queues, skipping empty URLs.
func DeleteQueues(ctx context.Context, client *sqs.Client, queueURLs ...string) error {
	for _, queueURL := range queueURLs {
		if queueURL == "" {
			continue
		}
		_, err := client.DeleteQueue(ctx, &sqs.DeleteQueueInput{
			QueueUrl: aws.String(queueURL),
		})
		if err != nil {
			return fmt.Errorf("failed to delete queue %s: %w", queueURL, err)
		}
	}
	return nil
}
