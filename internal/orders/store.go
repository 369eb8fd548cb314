package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/bitebuddy-orders/internal/aws"
)

// Secondary indexes on the orders table.
const (
	EmailIndex       = "email-index"       // pk customer_email, sk created_at
	TransactionIndex = "transaction-index" // pk transaction_id (sparse)
)

var (
	// ErrOrderExists is returned when an order id is already taken.
	ErrOrderExists = errors.New("order already exists")
	// ErrDuplicateRequest is returned when the idempotency key of a create already exists.
	ErrDuplicateRequest = errors.New("duplicate request: idempotency key exists")
	// ErrTransactionConflict is returned when a create transaction collided with
	// another in-flight transaction on the same items.
	ErrTransactionConflict = errors.New("transaction conflict")
	// ErrVersionConflict is returned when a conditional replace lost a race.
	ErrVersionConflict = errors.New("version mismatch/conditional failed")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client           aws.DynamoDBAPI
	tableName        string
	idempotencyTable string
	ttlWindow        time.Duration
	nowFunc          func() time.Time
}

// NewStore creates a new orders Store. idempotencyTable and ttlWindow are used
// by CreateWithIdempotencyTransaction.
func NewStore(client aws.DynamoDBAPI, tableName, idempotencyTable string, ttlWindow time.Duration) *Store {
	return &Store{
		client:           client,
		tableName:        tableName,
		idempotencyTable: idempotencyTable,
		ttlWindow:        ttlWindow,
		nowFunc:          time.Now,
	}
}

// Create writes a new order. Returns ErrOrderExists if order_id is taken.
func (s *Store) Create(ctx context.Context, order Order) error {
	item, err := s.marshalOrder(order)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrOrderExists
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in the idempotency table (attribute_not_exists(idempotency_key))
//   - order record in the orders table (attribute_not_exists(order_id))
//
// idempotencyItem must be a serializable struct with attribute idempotency_key present.
// Returns ErrDuplicateRequest if the transaction was canceled by a condition.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyItem interface{}, order Order) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	// ensure idempotency TTL if the caller did not set one
	if _, ok := idempMap["expires_at"]; !ok && s.ttlWindow > 0 {
		expires := s.nowFunc().Add(s.ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	orderMap, err := s.marshalOrder(order)
	if err != nil {
		return err
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", cancellationCause(tce.CancellationReasons), err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// cancellationCause maps the per-item reasons of a cancelled create
// transaction (idempotency record first, order second) to a store error.
func cancellationCause(reasons []types.CancellationReason) error {
	code := func(i int) string {
		if i < len(reasons) && reasons[i].Code != nil {
			return *reasons[i].Code
		}
		return ""
	}
	switch {
	case len(reasons) == 0, code(0) == "ConditionalCheckFailed":
		return ErrDuplicateRequest
	case code(0) == "TransactionConflict", code(1) == "TransactionConflict":
		return ErrTransactionConflict
	case code(1) == "ConditionalCheckFailed":
		return ErrOrderExists
	default:
		return ErrTransactionConflict
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByEmail returns all orders of a customer, newest first.
func (s *Store) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(EmailIndex),
		KeyConditionExpression: awsString("customer_email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		ScanIndexForward: awsBool(false),
	}

	var out []Order
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders by email: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	// pages are ordered per page; keep the whole result stable
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindByTransactionID returns the order carrying a processor transaction id, or (nil, nil).
func (s *Store) FindByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	page, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(TransactionIndex),
		KeyConditionExpression: awsString("transaction_id = :tx"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tx": &types.AttributeValueMemberS{Value: transactionID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query orders by transaction: %w", err)
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(page.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Replace overwrites an order only if the stored version still equals
// expectedVersion. Returns ErrVersionConflict if the condition failed.
// The caller is responsible for bumping order.Version.
func (s *Store) Replace(ctx context.Context, order Order, expectedVersion int64) error {
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("#v = :expected"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrVersionConflict
		}
		return fmt.Errorf("replace order: %w", err)
	}
	return nil
}

// marshalOrder fills timestamps on a new order and marshals it.
func (s *Store) marshalOrder(order Order) (map[string]types.AttributeValue, error) {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return item, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
