package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is an in-memory implementation of aws.DynamoDBAdminClient for testing.
// Tables must be created with CreateTable first; items are keyed by the table's
// hash and range key. Scan and Query understand the small expression grammar the
// catalog store emits: comparisons, attribute_exists/attribute_not_exists, AND, OR.
type DynamoDBClient struct {
	mu     sync.Mutex
	tables map[string]*table

	// PageSize caps the number of items one Scan or Query page returns. Zero means no cap.
	PageSize int

	// BeforePutItem runs outside the lock before every PutItem is applied.
	BeforePutItem func(params *dynamodb.PutItemInput)

	failures    map[string][]error
	unprocessed int
	calls       map[string]int
}

type keySchema struct {
	hash  string
	rng   string
	index map[string]keySchema
}

type table struct {
	schema keySchema
	items  map[string]map[string]types.AttributeValue
}

// NewDynamoDBClient creates a new mock DynamoDB client
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{
		tables:   make(map[string]*table),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// FailNext queues err to be returned by the next call of the named operation
// (for example "PutItem"). Queued errors are consumed in order.
func (m *DynamoDBClient) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// UnprocessNext makes the next BatchWriteItem hand back its last n requests as unprocessed.
func (m *DynamoDBClient) UnprocessNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unprocessed = n
}

// Calls returns how many times the named operation was invoked.
func (m *DynamoDBClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter counts the call and pops a queued failure. Callers must hold m.mu.
func (m *DynamoDBClient) enter(op string) error {
	m.calls[op]++
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[op] = queue[1:]
	return err
}

func (m *DynamoDBClient) table(name *string) (*table, error) {
	t, ok := m.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + aws.ToString(name))}
	}
	return t, nil
}

// compositeKey builds a deterministic, sortable storage key from the key attributes.
func (s keySchema) compositeKey(item map[string]types.AttributeValue) (string, error) {
	hash, ok := item[s.hash]
	if !ok {
		return "", fmt.Errorf("missing hash key %q", s.hash)
	}
	key := attributeToString(hash)
	if s.rng != "" {
		rng, ok := item[s.rng]
		if !ok {
			return "", fmt.Errorf("missing range key %q", s.rng)
		}
		key += "\x00" + attributeToString(rng)
	}
	return key, nil
}

func (s keySchema) keyOf(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{s.hash: item[s.hash]}
	if s.rng != "" {
		key[s.rng] = item[s.rng]
	}
	return key
}

// attributeToString converts an AttributeValue to a string for key generation
func attributeToString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

// CreateTable records the key schema and global secondary indexes of a new table.
func (m *DynamoDBClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateTable"); err != nil {
		return nil, err
	}

	name := aws.ToString(params.TableName)
	if _, exists := m.tables[name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}

	schema := schemaFrom(params.KeySchema)
	schema.index = make(map[string]keySchema)
	for _, gsi := range params.GlobalSecondaryIndexes {
		schema.index[aws.ToString(gsi.IndexName)] = schemaFrom(gsi.KeySchema)
	}
	m.tables[name] = &table{schema: schema, items: make(map[string]map[string]types.AttributeValue)}

	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
			KeySchema:   params.KeySchema,
		},
	}, nil
}

func schemaFrom(elems []types.KeySchemaElement) keySchema {
	var s keySchema
	for _, e := range elems {
		switch e.KeyType {
		case types.KeyTypeHash:
			s.hash = aws.ToString(e.AttributeName)
		case types.KeyTypeRange:
			s.rng = aws.ToString(e.AttributeName)
		}
	}
	return s
}

// DescribeTable reports every created table as ACTIVE.
func (m *DynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DescribeTable"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
			ItemCount:   aws.Int64(int64(len(t.items))),
		},
	}, nil
}

// GetItem returns a copy of the stored item, or an empty output when absent.
func (m *DynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.schema.compositeKey(params.Key)
	if err != nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String(err.Error())}
	}
	item, ok := t.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

// PutItem stores the item after evaluating its ConditionExpression against the current item.
func (m *DynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if hook := m.BeforePutItem; hook != nil {
		hook(params)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.schema.compositeKey(params.Item)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	if params.ConditionExpression != nil {
		current := t.items[key]
		if current == nil {
			current = map[string]types.AttributeValue{}
		}
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}

	t.items[key] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem removes the item; deleting an absent item succeeds like the real service.
func (m *DynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.schema.compositeKey(params.Key)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	delete(t.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan pages through the table (or an index) in key order, applying FilterExpression per page.
func (m *DynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}

	page, last, err := m.page(t, aws.ToString(params.IndexName), params.ExclusiveStartKey, limitOf(params.Limit), func(item map[string]types.AttributeValue) (bool, error) {
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.ScanOutput{LastEvaluatedKey: last, ScannedCount: int32(len(page))}
	for _, item := range page {
		if params.FilterExpression != nil {
			ok, err := evalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(item))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// Query pages through the items matching KeyConditionExpression, then applies FilterExpression.
func (m *DynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Query"); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("validation: KeyConditionExpression is required")
	}

	page, last, err := m.page(t, aws.ToString(params.IndexName), params.ExclusiveStartKey, limitOf(params.Limit), func(item map[string]types.AttributeValue) (bool, error) {
		return evalCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.QueryOutput{LastEvaluatedKey: last, ScannedCount: int32(len(page))}
	for _, item := range page {
		if params.FilterExpression != nil {
			ok, err := evalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(item))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func limitOf(limit *int32) int {
	if limit == nil {
		return 0
	}
	return int(*limit)
}

// page selects the next page of candidate items after startKey. Items missing the
// index key attributes are not part of the index and are skipped.
func (m *DynamoDBClient) page(t *table, indexName string, startKey map[string]types.AttributeValue, limit int,
	match func(map[string]types.AttributeValue) (bool, error)) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	var index *keySchema
	if indexName != "" {
		idx, ok := t.schema.index[indexName]
		if !ok {
			return nil, nil, fmt.Errorf("validation: table has no index %q", indexName)
		}
		index = &idx
	}

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := ""
	if len(startKey) > 0 {
		k, err := t.schema.compositeKey(startKey)
		if err != nil {
			return nil, nil, fmt.Errorf("validation: bad ExclusiveStartKey: %w", err)
		}
		start = k
	}

	pageSize := m.PageSize
	if limit > 0 && (pageSize == 0 || limit < pageSize) {
		pageSize = limit
	}

	var page []map[string]types.AttributeValue
	for i, k := range keys {
		if start != "" && k <= start {
			continue
		}
		item := t.items[k]
		if index != nil {
			if _, ok := item[index.hash]; !ok {
				continue
			}
			if index.rng != "" {
				if _, ok := item[index.rng]; !ok {
					continue
				}
			}
		}
		ok, err := match(item)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		page = append(page, item)
		if pageSize > 0 && len(page) == pageSize && i < len(keys)-1 {
			return page, t.schema.keyOf(item), nil
		}
	}
	return page, nil, nil
}

// BatchWriteItem applies put and delete requests, optionally handing some back as unprocessed.
func (m *DynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BatchWriteItem"); err != nil {
		return nil, err
	}

	unprocessed := make(map[string][]types.WriteRequest)
	for tableName, writeRequests := range params.RequestItems {
		if len(writeRequests) > 25 {
			return nil, fmt.Errorf("validation: too many items in batch: %d", len(writeRequests))
		}
		t, err := m.table(aws.String(tableName))
		if err != nil {
			return nil, err
		}

		apply := writeRequests
		if m.unprocessed > 0 {
			n := m.unprocessed
			if n > len(writeRequests) {
				n = len(writeRequests)
			}
			apply = writeRequests[:len(writeRequests)-n]
			unprocessed[tableName] = writeRequests[len(writeRequests)-n:]
			m.unprocessed = 0
		}

		for _, writeRequest := range apply {
			if writeRequest.PutRequest != nil {
				item := writeRequest.PutRequest.Item
				key, err := t.schema.compositeKey(item)
				if err != nil {
					return nil, fmt.Errorf("validation: %w", err)
				}
				t.items[key] = copyItem(item)
			}

			if writeRequest.DeleteRequest != nil {
				key, err := t.schema.compositeKey(writeRequest.DeleteRequest.Key)
				if err != nil {
					return nil, fmt.Errorf("validation: %w", err)
				}
				delete(t.items, key)
			}
		}
	}

	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

// Items returns a copy of every item of a table, in key order.
func (m *DynamoDBClient) Items(tableName string) []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[tableName]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		items = append(items, copyItem(t.items[k]))
	}
	return items
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// evalCondition evaluates a condition made of terms joined by AND and OR, with AND
// binding tighter. Parentheses are not supported.
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, disjunct := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(disjunct, " AND ") {
			ok, err := evalTerm(strings.TrimSpace(term), names, values, item)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	name := func(ref string) string {
		if resolved, ok := names[ref]; ok {
			return resolved
		}
		return ref
	}

	for _, fn := range []string{"attribute_not_exists", "attribute_exists"} {
		if strings.HasPrefix(term, fn+"(") && strings.HasSuffix(term, ")") {
			_, exists := item[name(term[len(fn)+1:len(term)-1])]
			return exists == (fn == "attribute_exists"), nil
		}
	}

	parts := strings.Fields(term)
	if len(parts) != 3 {
		return false, fmt.Errorf("validation: unsupported expression term %q", term)
	}
	operand := func(ref string) (types.AttributeValue, bool) {
		if strings.HasPrefix(ref, ":") {
			v, ok := values[ref]
			return v, ok
		}
		v, ok := item[name(ref)]
		return v, ok
	}
	left, lok := operand(parts[0])
	right, rok := operand(parts[2])
	if !lok || !rok {
		return false, nil
	}

	cmp, ok := compare(left, right)
	if !ok {
		return false, nil
	}
	switch parts[1] {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("validation: unsupported operator %q", parts[1])
}

// compare orders two scalar values of the same type. Mismatched types do not compare.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
