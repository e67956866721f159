package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type dynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore is an Index on a DynamoDB table with hash key PartitionKey
// (owner) and range key RowKey (media id).
type DynamoStore struct {
	client dynamoAPI
	table  string
}

var _ Index = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

const (
	attrPartitionKey = "PartitionKey"
	attrRowKey       = "RowKey"
)

type dynamoItem struct {
	PartitionKey string    `dynamodbav:"PartitionKey"`
	RowKey       string    `dynamodbav:"RowKey"`
	Filename     string    `dynamodbav:"filename"`
	ContentType  string    `dynamodbav:"contentType"`
	Caption      string    `dynamodbav:"caption"`
	BlobName     string    `dynamodbav:"blobName"`
	BlobURL      string    `dynamodbav:"blobUrl"`
	CreatedAt    time.Time `dynamodbav:"createdAt"`
	UpdatedAt    time.Time `dynamodbav:"updatedAt"`
}

func toDynamoItem(rec Record) dynamoItem {
	return dynamoItem{
		PartitionKey: rec.OwnerID,
		RowKey:       rec.MediaID,
		Filename:     rec.Filename,
		ContentType:  rec.ContentType,
		Caption:      rec.Caption,
		BlobName:     rec.BlobKey,
		BlobURL:      rec.BlobLocation,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
}

func (it dynamoItem) record() Record {
	return Record{
		OwnerID:      it.PartitionKey,
		MediaID:      it.RowKey,
		Filename:     it.Filename,
		ContentType:  it.ContentType,
		Caption:      it.Caption,
		BlobKey:      it.BlobName,
		BlobLocation: it.BlobURL,
		CreatedAt:    it.CreatedAt.UTC(),
		UpdatedAt:    it.UpdatedAt.UTC(),
	}
}

func keyOf(ownerID, mediaID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartitionKey: &types.AttributeValueMemberS{Value: ownerID},
		attrRowKey:       &types.AttributeValueMemberS{Value: mediaID},
	}
}

// EnsureTable creates the table when missing and waits for it to become
// active. An existing table is not an error.
func (d *DynamoStore) EnsureTable(ctx context.Context, wait time.Duration) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPartitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrRowKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPartitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrRowKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %q: %w", d.table, err)
		}
	}
	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)}, wait); err != nil {
		return fmt.Errorf("wait for table %q: %w", d.table, err)
	}
	return nil
}

func (d *DynamoStore) Upsert(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(toDynamoItem(rec))
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}

func (d *DynamoStore) Get(ctx context.Context, ownerID, mediaID string) (Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            keyOf(ownerID, mediaID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Record{}, fmt.Errorf("dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return Record{}, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Record{}, fmt.Errorf("unmarshal item: %w", err)
	}
	return item.record(), nil
}

func (d *DynamoStore) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	var out []Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query: %w", err)
		}
		recs, err := unmarshalItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (d *DynamoStore) ListAll(ctx context.Context, limit int) ([]Record, error) {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	})
	var out []Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", err)
		}
		recs, err := unmarshalItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

func (d *DynamoStore) Merge(ctx context.Context, ownerID, mediaID string, fields Fields, updatedAt time.Time) error {
	ts, err := attributevalue.Marshal(updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("marshal updatedAt: %w", err)
	}
	sets := []string{"#u = :u"}
	names := map[string]string{"#pk": attrPartitionKey, "#u": "updatedAt"}
	values := map[string]types.AttributeValue{":u": ts}
	if fields.Caption != nil {
		sets = append(sets, "#c = :c")
		names["#c"] = "caption"
		values[":c"] = &types.AttributeValueMemberS{Value: *fields.Caption}
	}
	if fields.Filename != nil {
		sets = append(sets, "#f = :f")
		names["#f"] = "filename"
		values[":f"] = &types.AttributeValueMemberS{Value: *fields.Filename}
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       keyOf(ownerID, mediaID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("dynamodb update: %w", err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, ownerID, mediaID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.table),
		Key:                      keyOf(ownerID, mediaID),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": attrPartitionKey},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("dynamodb delete: %w", err)
	}
	return nil
}

func unmarshalItems(items []map[string]types.AttributeValue) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for _, raw := range items {
		var item dynamoItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		out = append(out, item.record())
	}
	return out, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
