package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"radar_server/models"
)

// DynamoAPI is the subset of *dynamodb.Client used by the store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type DynamoService struct {
	Client DynamoAPI
}

// InitializeDynamoDBClient initializes the DynamoDB client
func InitializeDynamoDBClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// PutItem marshals item and writes it, optionally guarded by a condition expression.
// A failed condition is reported as models.ErrDuplicateKey.
func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}, condition string) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		log.Printf("❌ Failed to marshal item for table '%s': %v", tableName, err)
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      marshaledItem,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}

	if _, err = ds.Client.PutItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return models.ErrDuplicateKey
		}
		log.Printf("❌ Failed to insert item into table '%s': %v", tableName, err)
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// GetItem retrieves an item and unmarshals it into out. Missing items return models.ErrNotFound.
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if len(output.Item) == 0 {
		return models.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item from table '%s': %w", tableName, err)
	}
	return nil
}

// UpdateItem applies updateExpression to the item at key and returns the updated
// attributes. A failed condition is reported as models.ErrNotFound.
func (ds *DynamoService) UpdateItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpression string,
	condition string,
	expressionAttributeValues map[string]types.AttributeValue,
	expressionAttributeNames map[string]string,
) (map[string]types.AttributeValue, error) {
	// Ensure key is not empty
	if len(key) == 0 {
		log.Println("❌ Update failed: key cannot be empty")
		return nil, errors.New("update failed: key cannot be empty")
	}
	if updateExpression == "" {
		log.Println("❌ Update failed: updateExpression cannot be empty")
		return nil, errors.New("update failed: updateExpression cannot be empty")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpression),
		ExpressionAttributeValues: expressionAttributeValues,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(expressionAttributeNames) > 0 {
		input.ExpressionAttributeNames = expressionAttributeNames
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}

	output, err := ds.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return nil, models.ErrNotFound
		}
		log.Printf("❌ Failed to update item in table '%s': %v", tableName, err)
		return nil, fmt.Errorf("failed to update item in table '%s': %w", tableName, err)
	}
	return output.Attributes, nil
}

// DeleteItem removes an item from DynamoDB
func (ds *DynamoService) DeleteItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	condition string,
	expressionAttributeValues map[string]types.AttributeValue,
) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
		input.ExpressionAttributeValues = expressionAttributeValues
	}
	if _, err := ds.Client.DeleteItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete item from table '%s': %w", tableName, err)
	}
	return nil
}

// QueryAll runs a query across every result page and unmarshals the items into out.
func (ds *DynamoService) QueryAll(ctx context.Context, input *dynamodb.QueryInput, out interface{}) error {
	var items []map[string]types.AttributeValue

	paginator := dynamodb.NewQueryPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("❌ Failed to query table '%s': %v", aws.ToString(input.TableName), err)
			return fmt.Errorf("failed to query table '%s': %w", aws.ToString(input.TableName), err)
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal query result: %w", err)
	}
	return nil
}

// TransactWriteItems runs the writes atomically. When DynamoDB cancels the
// transaction on a condition, the index of the failed item is reported through
// failedConditionIndex so callers can map it to a domain error.
func (ds *DynamoService) TransactWriteItems(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return &transactionConditionError{Index: i}
			}
		}
	}
	log.Printf("❌ Transaction failed: %v", err)
	return fmt.Errorf("failed to write transaction: %w", err)
}

// transactionConditionError reports which item of a transaction failed its condition.
type transactionConditionError struct {
	Index int
}

func (e *transactionConditionError) Error() string {
	return fmt.Sprintf("transaction condition failed on item %d", e.Index)
}

func failedConditionIndex(err error) (int, bool) {
	var condErr *transactionConditionError
	if errors.As(err, &condErr) {
		return condErr.Index, true
	}
	return -1, false
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// stringKey builds a single-attribute string key.
func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}
