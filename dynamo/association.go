package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/internal/shard"
)

// collectionPrefix marks owner attributes that hold an embedded collection.
const collectionPrefix = "_assoc."

func collectionAttribute(meta *grid.AssociationKeyMetadata) string {
	return collectionPrefix + meta.CollectionRole()
}

func isCollectionAttribute(name string) bool {
	return strings.HasPrefix(name, collectionPrefix)
}

// IsTupleAttribute reports whether an item attribute belongs to the tuple,
// as opposed to the TTL marker or an embedded collection.
func IsTupleAttribute(name string) bool {
	return name != TTLAttribute && !isCollectionAttribute(name)
}

// IsStoredInEntityStructure reports true for embedded collections and, with
// InEntity storage, for every association.
func (d *Dialect) IsStoredInEntityStructure(meta *grid.AssociationKeyMetadata) bool {
	return meta.Kind() == grid.AssociationKindEmbeddedCollection || d.config.AssociationStorage == InEntity
}

// GetAssociation loads the rows of key, or nil if none are stored.
func (d *Dialect) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	var raw []map[string]types.AttributeValue
	if d.IsStoredInEntityStructure(key.Metadata()) {
		item, err := d.getItem(ctx, key.Owner())
		if err != nil || item == nil {
			return nil, err
		}
		list, ok := item[collectionAttribute(key.Metadata())].(*types.AttributeValueMemberL)
		if !ok {
			return nil, nil
		}
		for _, v := range list.Value {
			if m, ok := v.(*types.AttributeValueMemberM); ok {
				raw = append(raw, m.Value)
			}
		}
	} else {
		items, err := d.queryRows(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, nil
		}
		for _, item := range items {
			if m, ok := item["row"].(*types.AttributeValueMemberM); ok {
				raw = append(raw, m.Value)
			}
		}
	}

	rows := make([]grid.AssociationRow, 0, len(raw))
	for _, r := range raw {
		row, err := decodeRow(key.Metadata(), r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(rows...)), nil
}

// CreateAssociation returns an empty association. Nothing is written.
func (d *Dialect) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	return grid.NewAssociation(), nil
}

// InsertOrUpdateAssociation rewrites the embedded list, or applies the net
// row changes to the association table.
func (d *Dialect) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	if d.IsStoredInEntityStructure(key.Metadata()) {
		upd, err := d.embeddedUpdate(key, assoc)
		if err != nil {
			return err
		}
		_, err = d.client.UpdateItem(ctx, updateInput(upd))
		if isConditionFailed(err) {
			return grid.Rejected("update_item", fmt.Errorf("owner %s of association %s does not exist", key.Owner(), key))
		}
		return mapError("update_item", err)
	}
	writes, err := d.rowWrites(ctx, key, assoc)
	if err != nil {
		return err
	}
	return d.transact(ctx, grid.OpInsertOrUpdateAssociation, writes)
}

// RemoveAssociation drops the embedded list, or deletes every row item.
func (d *Dialect) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	if d.IsStoredInEntityStructure(key.Metadata()) {
		k, err := keyAttributes(key.Owner())
		if err != nil {
			return err
		}
		e := newExpr()
		e.remove(collectionAttribute(key.Metadata()))
		e.exists(key.Owner().ColumnNames()[0])
		_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(key.Owner().Table()),
			Key:                       k,
			UpdateExpression:          e.updateExpression(),
			ConditionExpression:       e.conditionExpression(),
			ExpressionAttributeNames:  e.attributeNames(),
			ExpressionAttributeValues: e.attributeValues(),
		})
		// Ignore condition failure - owner is gone, and the list with it
		if isConditionFailed(err) {
			return nil
		}
		return mapError("update_item", err)
	}
	writes, err := d.rowDeletes(ctx, key)
	if err != nil {
		return err
	}
	return d.transact(ctx, grid.OpRemoveAssociation, writes)
}

// embeddedUpdate sets the owner's collection attribute to the current rows.
// The owner item must exist.
func (d *Dialect) embeddedUpdate(key grid.AssociationKey, assoc *grid.Association) (*types.Update, error) {
	k, err := keyAttributes(key.Owner())
	if err != nil {
		return nil, err
	}
	list := make([]types.AttributeValue, 0, assoc.Size())
	for _, row := range assoc.Rows() {
		m, err := encodeRow(row)
		if err != nil {
			return nil, err
		}
		list = append(list, &types.AttributeValueMemberM{Value: m})
	}
	e := newExpr()
	e.set(collectionAttribute(key.Metadata()), &types.AttributeValueMemberL{Value: list})
	e.exists(key.Owner().ColumnNames()[0])
	return &types.Update{
		TableName:                 aws.String(key.Owner().Table()),
		Key:                       k,
		UpdateExpression:          e.updateExpression(),
		ConditionExpression:       e.conditionExpression(),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, nil
}

// rowItemKey returns the partition and sort key of one row item.
func (d *Dialect) rowItemKey(key grid.AssociationKey, row grid.RowKey) map[string]types.AttributeValue {
	assocRef := shard.Digest(key.ID())
	rowRef := shard.Digest(row.ID())
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: shard.AssociationPK(assocRef, rowRef, d.config.NumShards)},
		"sk": &types.AttributeValueMemberS{Value: rowRef},
	}
}

// rowWrites computes the puts and deletes that bring the association table
// in line with assoc. After a Clear every stored row not present anymore
// is deleted.
func (d *Dialect) rowWrites(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) ([]types.TransactWriteItem, error) {
	ops := assoc.Operations()
	start := 0
	for i, op := range ops {
		if op.Type == grid.ClearOperation {
			start = i + 1
		}
	}

	var writes []types.TransactWriteItem
	written := map[string]bool{}
	for _, op := range ops[start:] {
		if op.Type == grid.ClearOperation {
			continue
		}
		itemKey := d.rowItemKey(key, op.Key)
		sk := skOf(itemKey)
		if written[sk] {
			continue
		}
		written[sk] = true

		row, ok := assoc.Get(op.Key)
		if !ok {
			writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(d.config.AssociationTable),
				Key:       itemKey,
			}})
			continue
		}
		m, err := encodeRow(grid.AssociationRow{Key: op.Key, Tuple: row})
		if err != nil {
			return nil, err
		}
		item := map[string]types.AttributeValue{
			"association": &types.AttributeValueMemberS{Value: key.ID()},
			"table":       &types.AttributeValueMemberS{Value: key.Table()},
			"row":         &types.AttributeValueMemberM{Value: m},
		}
		for n, v := range itemKey {
			item[n] = v
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(d.config.AssociationTable),
			Item:      item,
		}})
	}

	if start > 0 {
		stored, err := d.queryRows(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, item := range stored {
			if written[skOf(item)] {
				continue
			}
			writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(d.config.AssociationTable),
				Key:       map[string]types.AttributeValue{"pk": item["pk"], "sk": item["sk"]},
			}})
		}
	}
	return writes, nil
}

// rowDeletes lists a delete for every stored row of key.
func (d *Dialect) rowDeletes(ctx context.Context, key grid.AssociationKey) ([]types.TransactWriteItem, error) {
	stored, err := d.queryRows(ctx, key)
	if err != nil {
		return nil, err
	}
	writes := make([]types.TransactWriteItem, 0, len(stored))
	for _, item := range stored {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(d.config.AssociationTable),
			Key:       map[string]types.AttributeValue{"pk": item["pk"], "sk": item["sk"]},
		}})
	}
	return writes, nil
}

// queryRows fans out over every shard of key and returns the row items
// ordered by sort key.
func (d *Dialect) queryRows(ctx context.Context, key grid.AssociationKey) ([]map[string]types.AttributeValue, error) {
	var mu sync.Mutex
	var items []map[string]types.AttributeValue

	g, ctx := errgroup.WithContext(ctx)
	for shardNum, shardPK := range shard.ShardPKs(shard.Digest(key.ID()), d.config.NumShards) {
		g.Go(func() error {
			var shardItems []map[string]types.AttributeValue
			paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
				TableName:              aws.String(d.config.AssociationTable),
				KeyConditionExpression: aws.String("pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: shardPK},
				},
				ConsistentRead: aws.Bool(true),
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return mapError(fmt.Sprintf("query shard %02x", shardNum), err)
				}
				shardItems = append(shardItems, page.Items...)
			}

			mu.Lock()
			items = append(items, shardItems...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return skOf(items[i]) < skOf(items[j])
	})
	return items, nil
}

func skOf(item map[string]types.AttributeValue) string {
	if s, ok := item["sk"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// encodeRow stores the row content together with its row key values.
func encodeRow(row grid.AssociationRow) (map[string]types.AttributeValue, error) {
	m := row.Tuple.Map()
	values := row.Key.ColumnValues()
	for i, c := range row.Key.ColumnNames() {
		m[c] = values[i]
	}
	av, err := attributevalue.MarshalMap(m)
	if err != nil {
		return nil, fmt.Errorf("marshal row %s: %w", row.Key, err)
	}
	return av, nil
}

func decodeRow(meta *grid.AssociationKeyMetadata, raw map[string]types.AttributeValue) (grid.AssociationRow, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(raw, &m); err != nil {
		return grid.AssociationRow{}, fmt.Errorf("unmarshal row: %w", err)
	}
	rowKey, err := meta.RowKeyBuilder().Values(m).Build()
	if err != nil {
		return grid.AssociationRow{}, err
	}
	return grid.AssociationRow{
		Key:   rowKey,
		Tuple: grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate),
	}, nil
}
