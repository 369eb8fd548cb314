package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory mock that understands the condition
// expressions issued by Store. It stores items per table: table -> pk -> item.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	// partition key attribute per table
	keys map[string]string
	// pageSize > 0 splits Query results to exercise pagination
	pageSize int
	// conflict makes the next transaction fail as if another one held its items
	conflict bool
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
		keys: map[string]string{
			ordersTable: "order_id",
			idempTable:  "idempotency_key",
		},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func (m *mockDynamo) primaryKey(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := m.keys[table]
	if !ok {
		return "", errors.New("unknown table " + table)
	}
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("no " + name + " attribute")
	}
	return v.Value, nil
}

// conditionHolds evaluates the handful of expressions used by the stores.
func conditionHolds(expr *string, existing map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	if expr == nil {
		return true
	}
	switch *expr {
	case "attribute_not_exists(order_id)", "attribute_not_exists(idempotency_key)":
		return existing == nil
	case "#v = :expected":
		if existing == nil {
			return false
		}
		cur, ok := existing["version"].(*types.AttributeValueMemberN)
		return ok && cur.Value == values[":expected"].(*types.AttributeValueMemberN).Value
	}
	return false
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := m.primaryKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := m.tables[table][pk]
	if !conditionHolds(params.ConditionExpression, existing, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := m.primaryKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("UpdateItem not supported by orders mock")
}

// Query supports "<attr> = :<value>" key conditions against a GSI attribute.
func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	parts := strings.SplitN(*params.KeyConditionExpression, " = ", 2)
	if len(parts) != 2 {
		return nil, errors.New("unsupported key condition")
	}
	attr, want := parts[0], params.ExpressionAttributeValues[parts[1]].(*types.AttributeValueMemberS).Value

	var keys []string
	for pk, item := range m.tables[table] {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok && v.Value == want {
			keys = append(keys, pk)
		}
	}
	// deterministic order so pagination offsets stay valid between calls
	sort.Strings(keys)
	matched := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, pk := range keys {
		matched = append(matched, m.tables[table][pk])
	}

	start := 0
	if params.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(params.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := len(matched)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}
	if params.Limit != nil && start+int(*params.Limit) < end {
		end = start + int(*params.Limit)
	}
	out := &dyn.QueryOutput{Items: matched[start:end]}
	if end < len(matched) && params.Limit == nil {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict {
		m.conflict = false
		reasons := make([]types.CancellationReason, len(params.TransactItems))
		for i := range reasons {
			reasons[i].Code = awsString("TransactionConflict")
		}
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	// First pass: verify condition expressions
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i].Code = awsString("None")
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			pk, err := m.primaryKey(table, p.Item)
			if err != nil {
				return nil, err
			}
			if !conditionHolds(p.ConditionExpression, m.tables[table][pk], p.ExpressionAttributeValues) {
				reasons[i].Code = awsString("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	// Second pass: apply all puts
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := m.primaryKey(*p.TableName, p.Item)
			m.tables[*p.TableName][pk] = p.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
