package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/grid"
)

// batch splits a queue into TransactWriteItems rounds. A transaction may
// not touch the same item twice, so a repeated item starts a new round.
// The items of one operation always share a round.
type batch struct {
	d       *Dialect
	items   []types.TransactWriteItem
	inserts map[int]grid.EntityKey
	seen    map[string]bool
	pending []grid.Operation
	applied []grid.Operation
}

func (b *batch) reset() {
	b.items = nil
	b.inserts = map[int]grid.EntityKey{}
	b.seen = map[string]bool{}
	b.pending = nil
}

func (b *batch) flush(ctx context.Context) error {
	if len(b.items) == 0 {
		b.applied = append(b.applied, b.pending...)
		b.pending = nil
		return nil
	}
	_, err := b.d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: b.items,
	})
	if err != nil {
		return b.mapError(err)
	}
	b.applied = append(b.applied, b.pending...)
	b.reset()
	return nil
}

// add places the items of op in the current round, flushing it first when
// op would repeat an item or overflow the limit.
func (b *batch) add(ctx context.Context, op grid.Operation, ids []string, items []types.TransactWriteItem) error {
	if err := b.d.checkLimit(op.Type(), len(items)); err != nil {
		return err
	}
	if len(b.items)+len(items) > b.d.config.MaxTransactItems || b.repeats(ids) {
		if err := b.flush(ctx); err != nil {
			return err
		}
	}
	for _, id := range ids {
		b.seen[id] = true
	}
	b.items = append(b.items, items...)
	b.pending = append(b.pending, op)
	return nil
}

func (b *batch) repeats(ids []string) bool {
	for _, id := range ids {
		if b.seen[id] {
			return true
		}
	}
	return false
}

func (b *batch) addInsert(ctx context.Context, op grid.Operation, key grid.EntityKey, put *types.Put) error {
	id := itemID(key.Table(), key.ID())
	if err := b.add(ctx, op, []string{id}, []types.TransactWriteItem{{Put: put}}); err != nil {
		return err
	}
	b.inserts[len(b.items)-1] = key
	return nil
}

func (b *batch) addRows(ctx context.Context, op grid.Operation, writes []types.TransactWriteItem) error {
	ids := make([]string, len(writes))
	for i, w := range writes {
		ids[i] = rowItemID(w)
	}
	return b.add(ctx, op, ids, writes)
}

// direct runs fn outside a transaction, after everything added before it.
func (b *batch) direct(ctx context.Context, op grid.Operation, fn func() error) error {
	if err := b.flush(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	b.applied = append(b.applied, op)
	return nil
}

// mapError reports a failed insert condition as the key that already exists.
func (b *batch) mapError(err error) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			if key, ok := b.inserts[i]; ok {
				return &grid.TupleAlreadyExistsError{Key: key}
			}
		}
	}
	return mapError("transact_write_items", err)
}

// ExecuteBatch applies the queue with as few TransactWriteItems calls as
// the item limit and repeated keys allow. Each round is atomic; rounds
// already committed stay applied if a later one fails, and the error then
// is a *grid.PartialBatchError listing their operations.
func (d *Dialect) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	b := &batch{d: d}
	b.reset()
	for op, ok := queue.Poll(); ok; op, ok = queue.Poll() {
		if err := d.batchOperation(ctx, b, op); err != nil {
			return grid.PartialBatch(b.applied, err)
		}
	}
	return grid.PartialBatch(b.applied, b.flush(ctx))
}

func (d *Dialect) batchOperation(ctx context.Context, b *batch, op grid.Operation) error {
	switch o := op.(type) {
	case grid.InsertOrUpdateTupleOp:
		if o.Tuple.SnapshotType() == grid.SnapshotInsert {
			put, err := d.insertPut(o.Key, o.Tuple)
			if err != nil {
				return err
			}
			return b.addInsert(ctx, op, o.Key, put)
		}
		upd, ok, err := d.tupleUpdate(o.Key, o.Tuple, newExpr())
		if err != nil {
			return err
		}
		if !ok {
			return b.add(ctx, op, nil, nil)
		}
		return b.add(ctx, op, []string{itemID(o.Key.Table(), o.Key.ID())}, []types.TransactWriteItem{{Update: upd}})

	case grid.RemoveTupleOp:
		if d.config.SoftDelete {
			return b.direct(ctx, op, func() error { return d.RemoveTuple(ctx, o.Key) })
		}
		k, err := keyAttributes(o.Key)
		if err != nil {
			return err
		}
		return b.add(ctx, op, []string{itemID(o.Key.Table(), o.Key.ID())}, []types.TransactWriteItem{{Delete: &types.Delete{
			TableName: aws.String(o.Key.Table()),
			Key:       k,
		}}})

	case grid.InsertOrUpdateAssociationOp:
		if d.IsStoredInEntityStructure(o.Key.Metadata()) {
			upd, err := d.embeddedUpdate(o.Key, o.Association)
			if err != nil {
				return err
			}
			owner := o.Key.Owner()
			return b.add(ctx, op, []string{itemID(owner.Table(), owner.ID())}, []types.TransactWriteItem{{Update: upd}})
		}
		writes, err := d.rowWrites(ctx, o.Key, o.Association)
		if err != nil {
			return err
		}
		return b.addRows(ctx, op, writes)

	case grid.RemoveAssociationOp:
		if d.IsStoredInEntityStructure(o.Key.Metadata()) {
			return b.direct(ctx, op, func() error { return d.RemoveAssociation(ctx, o.Key) })
		}
		writes, err := d.rowDeletes(ctx, o.Key)
		if err != nil {
			return err
		}
		return b.addRows(ctx, op, writes)
	}
	return fmt.Errorf("dynamo: operation %s cannot be batched", op.Type())
}

// checkLimit rejects an operation whose items cannot fit one transaction.
func (d *Dialect) checkLimit(op grid.OperationType, n int) error {
	if n > d.config.MaxTransactItems {
		return grid.Rejected("transact_write_items",
			fmt.Errorf("%s needs %d items, above the limit of %d per transaction", op, n, d.config.MaxTransactItems))
	}
	return nil
}

// transact applies the writes of one protocol call in a single transaction.
func (d *Dialect) transact(ctx context.Context, op grid.OperationType, writes []types.TransactWriteItem) error {
	if len(writes) == 0 {
		return nil
	}
	if err := d.checkLimit(op, len(writes)); err != nil {
		return err
	}
	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	return mapError("transact_write_items", err)
}

func itemID(table, id string) string { return table + "|" + id }

func rowItemID(w types.TransactWriteItem) string {
	var table *string
	var key map[string]types.AttributeValue
	switch {
	case w.Put != nil:
		table, key = w.Put.TableName, w.Put.Item
	case w.Delete != nil:
		table, key = w.Delete.TableName, w.Delete.Key
	}
	return itemID(aws.ToString(table), skOf(key))
}
