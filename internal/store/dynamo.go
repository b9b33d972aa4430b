package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeySchema describes a table's partition (and optional sort) key
// attribute names, needed to build conditional expressions generically
// since Item carries no schema of its own.
type KeySchema struct {
	PartitionKey string
	SortKey      string // empty if the table has no sort key
}

// TTLAttribute is the attribute name DynamoDB's native TTL feature reads;
// every table the core writes to must have this attribute configured as
// its TTL attribute.
const TTLAttribute = "expires_at"

// DynamoKV is the production KV implementation backed by Amazon
// DynamoDB, mirroring spec.md §6's persisted-schema table: sessions
// (pk=session id), conversations (pk=session id, sk=message id),
// analytics (pk=date, sk=event id), tickets (pk=ticket number), and
// workflow events (pk=event id).
type DynamoKV struct {
	client  *dynamodb.Client
	schemas map[string]KeySchema
}

// NewDynamoKV constructs a DynamoKV. schemas must have one entry per
// table the caller will touch.
func NewDynamoKV(client *dynamodb.Client, schemas map[string]KeySchema) *DynamoKV {
	return &DynamoKV{client: client, schemas: schemas}
}

func (d *DynamoKV) schemaFor(table string) (KeySchema, error) {
	s, ok := d.schemas[table]
	if !ok {
		return KeySchema{}, fmt.Errorf("store: no key schema registered for table %q", table)
	}
	return s, nil
}

func withTTL(item Item, ttl time.Duration) Item {
	if ttl <= 0 {
		return item
	}
	out := make(Item, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	out[TTLAttribute] = time.Now().Add(ttl).Unix()
	return out
}

func keyCondition(schema KeySchema) (string, error) {
	if schema.PartitionKey == "" {
		return "", fmt.Errorf("store: key schema missing partition key")
	}
	expr := "attribute_not_exists(#pk)"
	if schema.SortKey != "" {
		expr += " AND attribute_not_exists(#sk)"
	}
	return expr, nil
}

func keyExistsCondition(schema KeySchema) string {
	expr := "attribute_exists(#pk)"
	if schema.SortKey != "" {
		expr += " AND attribute_exists(#sk)"
	}
	return expr
}

func keyNames(schema KeySchema) map[string]string {
	names := map[string]string{"#pk": schema.PartitionKey}
	if schema.SortKey != "" {
		names["#sk"] = schema.SortKey
	}
	return names
}

// Put implements KV.
func (d *DynamoKV) Put(ctx context.Context, table string, item Item, ttl time.Duration) error {
	av, err := attributevalue.MarshalMap(map[string]any(withTTL(item, ttl)))
	if err != nil {
		return fmt.Errorf("store: marshal item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &table,
		Item:      av,
	})
	return err
}

// PutIfAbsent implements KV.
func (d *DynamoKV) PutIfAbsent(ctx context.Context, table string, item Item, ttl time.Duration) error {
	schema, err := d.schemaFor(table)
	if err != nil {
		return err
	}
	cond, err := keyCondition(schema)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(map[string]any(withTTL(item, ttl)))
	if err != nil {
		return fmt.Errorf("store: marshal item: %w", err)
	}
	names := keyNames(schema)
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                &table,
		Item:                     av,
		ConditionExpression:      &cond,
		ExpressionAttributeNames: names,
	})
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

// Get implements KV.
func (d *DynamoKV) Get(ctx context.Context, table string, key Item) (Item, bool, error) {
	av, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return nil, false, fmt.Errorf("store: marshal key: %w", err)
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &table,
		Key:       av,
	})
	if err != nil {
		return nil, false, err
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var result map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &result); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal item: %w", err)
	}
	return Item(result), true, nil
}

// UpdateIfExists implements KV.
func (d *DynamoKV) UpdateIfExists(ctx context.Context, table string, key Item, updates Item) error {
	schema, err := d.schemaFor(table)
	if err != nil {
		return err
	}
	keyAV, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return fmt.Errorf("store: marshal key: %w", err)
	}

	names := keyNames(schema)
	values := map[string]types.AttributeValue{}
	setExpr := "SET "
	i := 0
	for k, v := range updates {
		nameKey := fmt.Sprintf("#u%d", i)
		valKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = k
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: marshal update %q: %w", k, err)
		}
		values[valKey] = av
		if i > 0 {
			setExpr += ", "
		}
		setExpr += nameKey + " = " + valKey
		i++
	}
	cond := keyExistsCondition(schema)

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &table,
		Key:                       keyAV,
		UpdateExpression:          &setExpr,
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

// Delete implements KV.
func (d *DynamoKV) Delete(ctx context.Context, table string, key Item) error {
	av, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return fmt.Errorf("store: marshal key: %w", err)
	}
	_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &table,
		Key:       av,
	})
	return err
}

// Scan implements KV.
func (d *DynamoKV) Scan(ctx context.Context, table string, fn func(Item) error) error {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{TableName: &table})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, rawItem := range page.Items {
			var result map[string]any
			if err := attributevalue.UnmarshalMap(rawItem, &result); err != nil {
				return fmt.Errorf("store: unmarshal scanned item: %w", err)
			}
			if err := fn(Item(result)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Query implements KV.
func (d *DynamoKV) Query(ctx context.Context, table string, partitionKeyName string, partitionKeyValue any, fn func(Item) error) error {
	av, err := attributevalue.Marshal(partitionKeyValue)
	if err != nil {
		return fmt.Errorf("store: marshal partition key value: %w", err)
	}
	keyCond := "#pk = :pk"
	input := &dynamodb.QueryInput{
		TableName:                 &table,
		KeyConditionExpression:    &keyCond,
		ExpressionAttributeNames:  map[string]string{"#pk": partitionKeyName},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": av},
	}
	paginator := dynamodb.NewQueryPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, rawItem := range page.Items {
			var result map[string]any
			if err := attributevalue.UnmarshalMap(rawItem, &result); err != nil {
				return fmt.Errorf("store: unmarshal queried item: %w", err)
			}
			if err := fn(Item(result)); err != nil {
				return err
			}
		}
	}
	return nil
}

// isConditionalCheckFailure reports whether err (or something it wraps)
// is DynamoDB's conditional-check-failed exception.
func isConditionalCheckFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
