package dynamo_test

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the subset of DynamoDB the
// dialect uses. It understands the expression shapes the dialect emits.
type fakeDynamo struct {
	mu      sync.Mutex
	schemas map[string][]string
	tables  map[string]map[string]map[string]types.AttributeValue

	// fail, when set, is returned by the next call.
	fail error

	transactCalls [][]types.TransactWriteItem
	calls         []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		schemas: map[string][]string{},
		tables:  map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (f *fakeDynamo) createTable(name string, keyAttrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[name] = keyAttrs
	f.tables[name] = map[string]map[string]types.AttributeValue{}
}

func (f *fakeDynamo) items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.tables[table]))
	for id := range f.tables[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]types.AttributeValue, len(ids))
	for i, id := range ids {
		out[i] = copyItem(f.tables[table][id])
	}
	return out
}

func (f *fakeDynamo) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeDynamo) begin(name string) error {
	f.calls = append(f.calls, name)
	if f.fail != nil {
		err := f.fail
		f.fail = nil
		return err
	}
	return nil
}

func (f *fakeDynamo) itemID(table string, key map[string]types.AttributeValue) (string, error) {
	schema, ok := f.schemas[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: aws.String("table " + table)}
	}
	parts := make([]string, len(schema))
	for i, name := range schema {
		v, ok := key[name]
		if !ok {
			return "", fmt.Errorf("missing key attribute %q", name)
		}
		parts[i] = avString(v)
	}
	return strings.Join(parts, "|"), nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	id, err := f.itemID(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.tables[*in.TableName][id]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	id, err := f.itemID(*in.TableName, in.Item)
	if err != nil {
		return nil, err
	}
	existing := f.tables[*in.TableName][id]
	if !evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	f.tables[*in.TableName][id] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	id, err := f.itemID(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	existing := f.tables[*in.TableName][id]
	if !evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	item, updated := applyUpdate(existing, in.Key, aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	f.tables[*in.TableName][id] = item
	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = updated
	}
	return out, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem"); err != nil {
		return nil, err
	}
	id, err := f.itemID(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	existing := f.tables[*in.TableName][id]
	if !evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	delete(f.tables[*in.TableName], id)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query supports the "pk = :pk" key condition only.
func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	if _, ok := f.schemas[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table " + *in.TableName)}
	}
	want := in.ExpressionAttributeValues[":pk"]
	var out []map[string]types.AttributeValue
	for _, item := range f.tables[*in.TableName] {
		if reflect.DeepEqual(item["pk"], want) {
			out = append(out, copyItem(item))
		}
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	if _, ok := f.schemas[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table " + *in.TableName)}
	}
	ids := make([]string, 0, len(f.tables[*in.TableName]))
	for id := range f.tables[*in.TableName] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]types.AttributeValue, len(ids))
	for i, id := range ids {
		out[i] = copyItem(f.tables[*in.TableName][id])
	}
	return &dynamodb.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems"); err != nil {
		return nil, err
	}
	f.transactCalls = append(f.transactCalls, in.TransactItems)

	type write struct {
		table, id string
		apply     func()
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	var writes []write
	seen := map[string]bool{}

	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		var (
			table, cond string
			key         map[string]types.AttributeValue
			names       map[string]string
			values      map[string]types.AttributeValue
		)
		switch {
		case ti.Put != nil:
			table, key, cond, names, values = *ti.Put.TableName, ti.Put.Item, aws.ToString(ti.Put.ConditionExpression), ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
		case ti.Update != nil:
			table, key, cond, names, values = *ti.Update.TableName, ti.Update.Key, aws.ToString(ti.Update.ConditionExpression), ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues
		case ti.Delete != nil:
			table, key, cond, names, values = *ti.Delete.TableName, ti.Delete.Key, aws.ToString(ti.Delete.ConditionExpression), ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
		case ti.ConditionCheck != nil:
			table, key, cond, names, values = *ti.ConditionCheck.TableName, ti.ConditionCheck.Key, aws.ToString(ti.ConditionCheck.ConditionExpression), ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues
		}
		id, err := f.itemID(table, key)
		if err != nil {
			return nil, err
		}
		if seen[table+"/"+id] {
			return nil, &types.TransactionCanceledException{Message: aws.String("duplicate item in transaction")}
		}
		seen[table+"/"+id] = true

		existing := f.tables[table][id]
		if !evalCondition(cond, existing, names, values) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
			continue
		}
		ti := ti
		writes = append(writes, write{table: table, id: id, apply: func() {
			switch {
			case ti.Put != nil:
				f.tables[table][id] = copyItem(ti.Put.Item)
			case ti.Update != nil:
				f.tables[table][id], _ = applyUpdate(existing, ti.Update.Key, aws.ToString(ti.Update.UpdateExpression), names, values)
			case ti.Delete != nil:
				delete(f.tables[table], id)
			}
		}})
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		w.apply()
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// evalCondition evaluates AND-joined clauses, each an atom or an "(x OR y)" group.
func evalCondition(cond string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	if cond == "" {
		return true
	}
	for _, clause := range strings.Split(cond, " AND ") {
		if strings.HasPrefix(clause, "(") {
			clause = strings.TrimSuffix(strings.TrimPrefix(clause, "("), ")")
		}
		ok := false
		for _, atom := range strings.Split(clause, " OR ") {
			if evalAtom(atom, item, names, values) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func evalAtom(atom string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	switch {
	case strings.HasPrefix(atom, "attribute_exists("):
		_, ok := item[names[strings.TrimSuffix(strings.TrimPrefix(atom, "attribute_exists("), ")")]]
		return ok
	case strings.HasPrefix(atom, "attribute_not_exists("):
		_, ok := item[names[strings.TrimSuffix(strings.TrimPrefix(atom, "attribute_not_exists("), ")")]]
		return !ok
	}
	parts := strings.Fields(atom)
	if len(parts) != 3 {
		panic("fake: unsupported condition " + atom)
	}
	got, ok := item[names[parts[0]]]
	if !ok {
		return false
	}
	want := values[parts[2]]
	switch parts[1] {
	case "=":
		return avEqual(got, want)
	case ">":
		return avNumber(got) > avNumber(want)
	case "<=":
		return avNumber(got) <= avNumber(want)
	}
	panic("fake: unsupported operator " + parts[1])
}

// applyUpdate applies "SET a = :v, b = if_not_exists(b, :s) + :i REMOVE c"
// and returns the new item plus the attributes it set.
func applyUpdate(existing, key map[string]types.AttributeValue, update string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, map[string]types.AttributeValue) {
	item := copyItem(existing)
	if item == nil {
		item = copyItem(key)
	}
	updated := map[string]types.AttributeValue{}

	setPart, removePart := update, ""
	if i := strings.Index(update, "REMOVE "); i >= 0 {
		setPart, removePart = strings.TrimSpace(update[:i]), update[i+len("REMOVE "):]
	}
	if strings.HasPrefix(setPart, "SET ") {
		clauses := strings.Split(strings.TrimPrefix(setPart, "SET "), ", #")
		for i, c := range clauses {
			if i > 0 {
				c = "#" + c
			}
			lhs, rhs, _ := strings.Cut(c, " = ")
			attr := names[lhs]
			var v types.AttributeValue
			if strings.HasPrefix(rhs, "if_not_exists(") {
				inner, inc, _ := strings.Cut(strings.TrimPrefix(rhs, "if_not_exists("), ") + ")
				_, startName, _ := strings.Cut(inner, ", ")
				base, ok := item[attr]
				if !ok {
					base = values[startName]
				}
				sum := avNumber(base) + avNumber(values[inc])
				v = &types.AttributeValueMemberN{Value: strconv.FormatFloat(sum, 'f', -1, 64)}
			} else {
				v = values[rhs]
			}
			item[attr] = v
			updated[attr] = v
		}
	}
	if removePart != "" {
		for _, n := range strings.Split(removePart, ", ") {
			delete(item, names[n])
		}
	}
	return item, updated
}

func avEqual(a, b types.AttributeValue) bool {
	if an, ok := a.(*types.AttributeValueMemberN); ok {
		if bn, ok := b.(*types.AttributeValueMemberN); ok {
			return avNumber(an) == avNumber(bn)
		}
	}
	return reflect.DeepEqual(a, b)
}

func avNumber(v types.AttributeValue) float64 {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(n.Value, 64)
	return f
}

func avString(v types.AttributeValue) string {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + x.Value
	case *types.AttributeValueMemberN:
		return "N:" + strconv.FormatFloat(avNumber(x), 'f', -1, 64)
	case *types.AttributeValueMemberB:
		return fmt.Sprintf("B:%x", x.Value)
	}
	return fmt.Sprintf("%T", v)
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
