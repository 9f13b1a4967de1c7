package history

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/video-insight/internal/analysis"
)

// DynamoDB key layout: every entry lives in one partition so the whole
// history can be listed with a single Query.
const (
	historyPK     = "HISTORY"
	entrySKPrefix = "ENTRY#"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// dynamoItem is the stored shape. PK/SK are added by put.
type dynamoItem struct {
	ID        string `dynamodbav:"id"`
	FileName  string `dynamodbav:"fileName"`
	Mode      string `dynamodbav:"mode"`
	CreatedAt int64  `dynamodbav:"createdAt"`
	Payload   []byte `dynamodbav:"payload"`
}

// DynamoStore keeps history in a DynamoDB table with a string PK and SK.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func entryKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: historyPK},
		"SK": &types.AttributeValueMemberS{Value: entrySKPrefix + id},
	}
}

// Save implements Store.
func (s *DynamoStore) Save(ctx context.Context, e *Entry) error {
	return s.put(ctx, e, false)
}

func (s *DynamoStore) put(ctx context.Context, e *Entry, mustExist bool) error {
	payload, err := encodePayload(e)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:        e.ID,
		FileName:  e.FileName,
		Mode:      string(e.Mode),
		CreatedAt: e.CreatedAt.UnixNano(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	for k, v := range entryKey(e.ID) {
		item[k] = v
	}

	in := &dynamodb.PutItemInput{TableName: &s.tableName, Item: item}
	if mustExist {
		in.ConditionExpression = aws.String("attribute_exists(PK)")
	}
	if _, err := s.client.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("PutItem id=%s: %w", e.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Entry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            entryKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem id=%s: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal id=%s: %w", id, err)
	}
	return decodePayload(item.Payload)
}

// List implements Store. Entries are sorted client-side by creation time.
func (s *DynamoStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	var items []dynamoItem
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":       &types.AttributeValueMemberS{Value: historyPK},
				":skPrefix": &types.AttributeValueMemberS{Value: entrySKPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("Query history: %w", err)
		}
		for _, raw := range out.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal history item: %w", err)
			}
			items = append(items, item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		e, err := decodePayload(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AppendChat implements Store. Concurrent appends to the same entry are
// last-writer-wins; chat is driven by one user at a time.
func (s *DynamoStore) AppendChat(ctx context.Context, id string, turns ...analysis.Turn) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	e.Chat = append(e.Chat, turns...)
	return s.put(ctx, e, true)
}

// Delete implements Store.
func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 entryKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("DeleteItem id=%s: %w", id, err)
	}
	return nil
}

// Close implements Store.
func (s *DynamoStore) Close() error { return nil }

