package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/grid"
)

// API is the subset of the DynamoDB client the dialect uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Dialect stores grid tuples and associations in DynamoDB tables. Every
// entity table is keyed by the entity's key columns.
type Dialect struct {
	client API
	config Config
	now    func() time.Time
}

// New creates a new Dialect instance.
func New(client API, config Config) *Dialect {
	config.validate()
	return &Dialect{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (d *Dialect) Config() Config { return d.config }

// Capabilities reports batching and optimistic locking.
func (d *Dialect) Capabilities() grid.Capabilities {
	return grid.NewCapabilities(grid.CapBatch, grid.CapOptimisticLock)
}

// GetTuple reads the item with a strongly consistent read.
func (d *Dialect) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	item, err := d.getItem(ctx, key)
	if err != nil || item == nil {
		return nil, err
	}
	m, err := d.unmarshalTuple(item)
	if err != nil {
		return nil, err
	}
	return grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate), nil
}

// getItem returns the live item for key, or nil.
func (d *Dialect) getItem(ctx context.Context, key grid.EntityKey) (map[string]types.AttributeValue, error) {
	k, err := keyAttributes(key)
	if err != nil {
		return nil, err
	}
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(key.Table()),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("get_item", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	if d.config.SoftDelete && IsDeleted(result.Item, d.now()) {
		return nil, nil
	}
	return result.Item, nil
}

// CreateTuple returns an empty insert tuple. Nothing is written.
func (d *Dialect) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	return grid.NewTuple(), nil
}

// InsertOrUpdateTuple writes an insert tuple as a conditional PutItem and
// any other tuple as an UpdateItem built from its change log.
func (d *Dialect) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	if tuple.SnapshotType() == grid.SnapshotInsert {
		put, err := d.insertPut(key, tuple)
		if err != nil {
			return err
		}
		_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 put.TableName,
			Item:                      put.Item,
			ConditionExpression:       put.ConditionExpression,
			ExpressionAttributeNames:  put.ExpressionAttributeNames,
			ExpressionAttributeValues: put.ExpressionAttributeValues,
		})
		if isConditionFailed(err) {
			return &grid.TupleAlreadyExistsError{Key: key}
		}
		return mapError("put_item", err)
	}

	e := newExpr()
	upd, ok, err := d.tupleUpdate(key, tuple, e)
	if err != nil || !ok {
		return err
	}
	_, err = d.client.UpdateItem(ctx, updateInput(upd))
	return mapError("update_item", err)
}

// RemoveTuple deletes the item, or marks it expired when soft delete is on.
func (d *Dialect) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	k, err := keyAttributes(key)
	if err != nil {
		return err
	}
	if !d.config.SoftDelete {
		_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(key.Table()),
			Key:       k,
		})
		return mapError("delete_item", err)
	}

	e := newExpr()
	e.ttl(unixValue(d.now()))
	e.sets = append(e.sets, "#ttl = :now")
	e.exists(key.ColumnNames()[0])
	e.condition("attribute_not_exists(#ttl)")
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(key.Table()),
		Key:                       k,
		UpdateExpression:          e.updateExpression(),
		ConditionExpression:       e.conditionExpression(),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	})
	// Ignore condition failure - missing or already deleted
	if isConditionFailed(err) {
		return nil
	}
	return mapError("update_item", err)
}

// ForEachTuple scans every table and feeds live items to consumer.
func (d *Dialect) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	now := d.now()
	for _, meta := range metas {
		paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
			TableName:      aws.String(meta.Table()),
			ConsistentRead: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return mapError("scan", err)
			}
			for _, item := range page.Items {
				if d.config.SoftDelete && IsDeleted(item, now) {
					continue
				}
				m, err := d.unmarshalTuple(item)
				if err != nil {
					return err
				}
				if err := consumer(meta, grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// insertPut builds the insert-only put for tuple. A soft-deleted item may
// be overwritten.
func (d *Dialect) insertPut(key grid.EntityKey, tuple *grid.Tuple) (*types.Put, error) {
	item, err := attributevalue.MarshalMap(tuple.Map())
	if err != nil {
		return nil, fmt.Errorf("marshal tuple %s: %w", key, err)
	}
	k, err := keyAttributes(key)
	if err != nil {
		return nil, err
	}
	for name, v := range k {
		item[name] = v
	}

	e := newExpr()
	if d.config.SoftDelete {
		e.ttl(unixValue(d.now()))
		e.notExists(key.ColumnNames()[0], deadCondition)
	} else {
		e.notExists(key.ColumnNames()[0])
	}
	return &types.Put{
		TableName:                 aws.String(key.Table()),
		Item:                      item,
		ConditionExpression:       e.conditionExpression(),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, nil
}

// tupleUpdate builds an update from the net effect of tuple's change log.
// Key columns cannot change and are skipped. It reports false when there
// is nothing to write.
func (d *Dialect) tupleUpdate(key grid.EntityKey, tuple *grid.Tuple, e *expr) (*types.Update, bool, error) {
	k, err := keyAttributes(key)
	if err != nil {
		return nil, false, err
	}
	puts, removes := netChanges(tuple)
	for _, c := range sortedKeys(puts) {
		if key.Metadata().IsKeyColumn(c) {
			continue
		}
		av, err := marshalValue(puts[c])
		if err != nil {
			return nil, false, err
		}
		e.set(c, av)
	}
	for _, c := range removes {
		if key.Metadata().IsKeyColumn(c) {
			continue
		}
		e.remove(c)
	}
	if !e.hasUpdate() {
		return nil, false, nil
	}
	return &types.Update{
		TableName:                 aws.String(key.Table()),
		Key:                       k,
		UpdateExpression:          e.updateExpression(),
		ConditionExpression:       e.conditionExpression(),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, true, nil
}

func updateInput(u *types.Update) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	}
}

// netChanges collapses a change log into the final put or remove per column.
func netChanges(tuple *grid.Tuple) (map[string]any, []string) {
	puts := map[string]any{}
	removed := map[string]bool{}
	for _, op := range tuple.Operations() {
		switch op.Type {
		case grid.PutOperation:
			puts[op.Column] = op.Value
			delete(removed, op.Column)
		case grid.RemoveOperation:
			removed[op.Column] = true
			delete(puts, op.Column)
		}
	}
	removes := make([]string, 0, len(removed))
	for c := range removed {
		removes = append(removes, c)
	}
	sort.Strings(removes)
	return puts, removes
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// keyAttributes converts an entity key into the item key.
func keyAttributes(key grid.EntityKey) (map[string]types.AttributeValue, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	names := key.ColumnNames()
	values := key.ColumnValues()
	k := make(map[string]types.AttributeValue, len(names))
	for i, name := range names {
		av, err := marshalValue(values[i])
		if err != nil {
			return nil, err
		}
		k[name] = av
	}
	return k, nil
}

// unmarshalTuple converts an item into tuple content, dropping the TTL
// marker and embedded collections.
func (d *Dialect) unmarshalTuple(item map[string]types.AttributeValue) (map[string]any, error) {
	m := make(map[string]any, len(item))
	for name, av := range item {
		if !IsTupleAttribute(name) {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, fmt.Errorf("unmarshal attribute %q: %w", name, err)
		}
		m[name] = v
	}
	return m, nil
}
