package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/jitr/internal/store"
)

type fakeDynamoDB struct {
	puts    []*dynamodb.PutItemInput
	queries []*dynamodb.QueryInput
	pages   []*dynamodb.QueryOutput
	putErr  error
	err     error
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func items(t *testing.T, entries ...store.JournalEntry) []map[string]types.AttributeValue {
	t.Helper()
	out := make([]map[string]types.AttributeValue, 0, len(entries))
	for _, e := range entries {
		item, err := attributevalue.MarshalMap(e)
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func TestJournalStore_Append(t *testing.T) {
	t.Run("writes item with condition", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		st := NewJournalStore(fake, "journal")

		err := st.Append(context.Background(), &store.JournalEntry{
			ID:        "0190b1c2-0000-7000-8000-000000000001",
			Pipeline:  store.PipelineRegistration,
			Outcome:   "InputError",
			Status:    422,
			Message:   "verifier is not valid",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, fake.puts, 1)

		put := fake.puts[0]
		require.Equal(t, "journal", aws.ToString(put.TableName))
		require.Equal(t, "attribute_not_exists(entry_id)", aws.ToString(put.ConditionExpression))
		require.Equal(t, &types.AttributeValueMemberS{Value: "registration"}, put.Item["pipeline"])
		require.Equal(t, &types.AttributeValueMemberN{Value: "422"}, put.Item["status"])

		// sparse index: no certificate, no attribute
		require.NotContains(t, put.Item, "certificate_id")
	})

	t.Run("duplicate entry", func(t *testing.T) {
		fake := &fakeDynamoDB{putErr: &types.ConditionalCheckFailedException{}}
		st := NewJournalStore(fake, "journal")

		err := st.Append(context.Background(), &store.JournalEntry{ID: "e1", Pipeline: store.PipelineActivation})
		require.ErrorIs(t, err, store.ErrEntryExists)
	})

	t.Run("throttled", func(t *testing.T) {
		fake := &fakeDynamoDB{putErr: &types.ProvisionedThroughputExceededException{}}
		st := NewJournalStore(fake, "journal")

		err := st.Append(context.Background(), &store.JournalEntry{ID: "e1", Pipeline: store.PipelineActivation})
		require.ErrorIs(t, err, store.ErrJournalThrottled)
		require.ErrorContains(t, err, "journal request throttled")
	})

	t.Run("invalid pipeline", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		st := NewJournalStore(fake, "journal")

		err := st.Append(context.Background(), &store.JournalEntry{ID: "e1"})
		require.ErrorIs(t, err, store.ErrInvalidPipeline)
		require.Empty(t, fake.puts)
	})
}

func TestJournalStore_List(t *testing.T) {
	fake := &fakeDynamoDB{
		pages: []*dynamodb.QueryOutput{
			{
				Items: items(t,
					store.JournalEntry{ID: "e3", Pipeline: store.PipelineActivation, CertificateID: "dev-1", Outcome: store.OutcomeSuccess, Status: 200},
					store.JournalEntry{ID: "e2", Pipeline: store.PipelineActivation, CertificateID: "dev-2", Outcome: "VerificationError", Status: 500},
				),
				LastEvaluatedKey: map[string]types.AttributeValue{"entry_id": &types.AttributeValueMemberS{Value: "e2"}},
			},
			{
				Items: items(t, store.JournalEntry{ID: "e1", Pipeline: store.PipelineActivation, Outcome: "InputError", Status: 422}),
			},
		},
	}
	st := NewJournalStore(fake, "journal")

	entries, err := st.List(context.Background(), store.PipelineActivation, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e3", entries[0].ID)
	require.True(t, entries[0].Succeeded())
	require.Equal(t, "VerificationError", entries[1].Outcome)

	require.Len(t, fake.queries, 1)
	query := fake.queries[0]
	require.Nil(t, query.IndexName)
	require.False(t, aws.ToBool(query.ScanIndexForward))
	require.Equal(t, int32(2), aws.ToInt32(query.Limit))
}

func TestJournalStore_ListByCertificate(t *testing.T) {
	fake := &fakeDynamoDB{
		pages: []*dynamodb.QueryOutput{
			{
				Items:            items(t, store.JournalEntry{ID: "e2", Pipeline: store.PipelineActivation, CertificateID: "dev-1"}),
				LastEvaluatedKey: map[string]types.AttributeValue{"entry_id": &types.AttributeValueMemberS{Value: "e2"}},
			},
			{
				Items: items(t, store.JournalEntry{ID: "e1", Pipeline: store.PipelineActivation, CertificateID: "dev-1"}),
			},
		},
	}
	st := NewJournalStore(fake, "journal")

	entries, err := st.ListByCertificate(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e1", entries[1].ID)

	require.Len(t, fake.queries, 2)
	require.Equal(t, CertificateIndexName, aws.ToString(fake.queries[0].IndexName))
	require.NotNil(t, fake.queries[1].ExclusiveStartKey)
}

func TestJournalStore_ListErrors(t *testing.T) {
	fake := &fakeDynamoDB{err: errors.New("ThrottlingException: slow down")}
	st := NewJournalStore(fake, "journal")

	_, err := st.List(context.Background(), store.PipelineRegistration, 10)
	require.ErrorIs(t, err, store.ErrJournalThrottled)

	_, err = st.List(context.Background(), "unknown", 10)
	require.ErrorIs(t, err, store.ErrInvalidPipeline)

	entries, err := st.ListByCertificate(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, entries)
}
