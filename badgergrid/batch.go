package badgergrid

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
)

// ExecuteBatch applies the whole queue in one transaction. Either every
// operation is committed or none is.
func (d *Dialect) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	var ops []grid.Operation
	for op, ok := queue.Poll(); ok; op, ok = queue.Poll() {
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return nil
	}
	return d.update(ctx, "execute_batch", func(txn *badger.Txn) error {
		for _, op := range ops {
			if err := d.applyOperation(txn, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dialect) applyOperation(txn *badger.Txn, op grid.Operation) error {
	switch o := op.(type) {
	case grid.InsertOrUpdateTupleOp:
		if o.Key.IsZero() {
			return fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
		}
		return applyTuple(txn, o.Key, o.Tuple)
	case grid.RemoveTupleOp:
		if o.Key.IsZero() {
			return fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
		}
		return txn.Delete(tupleKey(o.Key))
	case grid.InsertOrUpdateAssociationOp:
		return d.applyAssociation(txn, o.Key, o.Association)
	case grid.RemoveAssociationOp:
		return d.removeAssociation(txn, o.Key)
	}
	return fmt.Errorf("badgergrid: operation %s cannot be batched", op.Type())
}
