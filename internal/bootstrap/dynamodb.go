package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	storeaws "github.com/wolfeidau/jitr/internal/store/aws"
)

// CreateJournalTable creates the deal journal table and returns its name.
// If cleanResources is true, deletes an existing table first to ensure clean state
func CreateJournalTable(ctx context.Context, client *dynamodb.Client, env string, cleanResources bool) (string, error) {
	tableName := fmt.Sprintf("%s_jitr_journal", env)

	if err := createJournalTable(ctx, client, tableName, cleanResources); err != nil {
		return "", err
	}

	return tableName, nil
}

// createJournalTable keys entries by pipeline and time ordered entry id, with a
// sparse index on certificate_id for per certificate history.
func createJournalTable(ctx context.Context, client *dynamodb.Client, tableName string, cleanResources bool) error {
	if cleanResources {
		if err := deleteTableIfExists(ctx, client, tableName); err != nil {
			return err
		}
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(storeaws.JournalPartitionKey),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String(storeaws.JournalSortKey),
				KeyType:       types.KeyTypeRange,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(storeaws.JournalPartitionKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String(storeaws.JournalSortKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String(storeaws.CertificateIndexKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(storeaws.CertificateIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String(storeaws.CertificateIndexKey),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String(storeaws.JournalSortKey),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if !cleanResources && errors.As(err, &resourceInUse) {
			return nil // Table exists, reuse it
		}
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// deleteTableIfExists attempts to delete a table if it exists
func deleteTableIfExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}
