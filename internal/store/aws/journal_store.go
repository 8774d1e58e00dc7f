package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/jitr/internal/store"
)

// Journal table layout. Entry ids are UUIDv7 so the sort key orders by time.
const (
	JournalPartitionKey  = "pipeline"
	JournalSortKey       = "entry_id"
	CertificateIndexName = "certificate_id-index"
	CertificateIndexKey  = "certificate_id"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the journal.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// JournalStore is a DynamoDB implementation of store.JournalStore
type JournalStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewJournalStore creates a new DynamoDB journal store
func NewJournalStore(client DynamoDBAPI, tableName string) *JournalStore {
	return &JournalStore{
		client:    client,
		tableName: tableName,
	}
}

// Append writes an entry, refusing to overwrite an existing one.
func (s *JournalStore) Append(ctx context.Context, entry *store.JournalEntry) error {
	if !entry.Pipeline.Valid() {
		return store.ErrInvalidPipeline
	}

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrEntryExists
		}
		return wrapAWSError(err, "failed to append journal entry")
	}

	log.Debug().
		Str("entry_id", entry.ID).
		Str("pipeline", string(entry.Pipeline)).
		Str("outcome", entry.Outcome).
		Msg("journal entry appended")

	return nil
}

// List returns up to limit entries for the pipeline, newest first. A limit of
// zero or less returns every entry.
func (s *JournalStore) List(ctx context.Context, pipeline store.Pipeline, limit int) ([]*store.JournalEntry, error) {
	if !pipeline.Valid() {
		return nil, store.ErrInvalidPipeline
	}

	keyCond := expression.Key(JournalPartitionKey).Equal(expression.Value(string(pipeline)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(min(limit, 1000))) //nolint:gosec // bounded above
	}

	return s.query(ctx, input, limit)
}

// ListByCertificate returns every entry naming the certificate, newest first.
func (s *JournalStore) ListByCertificate(ctx context.Context, certificateID string) ([]*store.JournalEntry, error) {
	if certificateID == "" {
		return []*store.JournalEntry{}, nil
	}

	keyCond := expression.Key(CertificateIndexKey).Equal(expression.Value(certificateID))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return s.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(CertificateIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}, 0)
}

func (s *JournalStore) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]*store.JournalEntry, error) {
	entries := make([]*store.JournalEntry, 0)

	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError(err, "failed to query journal")
		}

		var records []store.JournalEntry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entries: %w", err)
		}

		for i := range records {
			entries = append(entries, &records[i])
			if limit > 0 && len(entries) == limit {
				return entries, nil
			}
		}
	}

	return entries, nil
}
