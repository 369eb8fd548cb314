package idempotency

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for PutItem/GetItem/UpdateItem used in unit tests.
// It understands only the expressions issued by Store.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyOf(item map[string]types.AttributeValue) (string, error) {
	keyAttr, ok := item["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return keyAttr.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	k, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(idempotency_key)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	vals := params.ExpressionAttributeValues

	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :failed" {
		cur, _ := item["status"].(*types.AttributeValueMemberS)
		if cur == nil || cur.Value != StatusFailed {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["status"] = vals[":inprogress"]
		item["updated_at"] = vals[":ua"]
		return &dyn.UpdateItemOutput{Attributes: item}, nil
	}

	for placeholder, attr := range map[string]string{":rb": "response_body", ":rs": "response_status", ":ua": "updated_at", ":n": "note"} {
		if v, ok := vals[placeholder]; ok {
			item[attr] = v
		}
	}
	if v, ok := vals[":done"]; ok {
		item["status"] = v
	}
	if v, ok := vals[":failed"]; ok {
		item["status"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("Query not supported by idempotency mock")
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("TransactWriteItems not supported by idempotency mock")
}
