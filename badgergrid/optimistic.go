package badgergrid

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
)

// UpdateTupleWithOptimisticLock applies tuple only if the stored record
// still matches oldLockState. Badger aborts the commit when another
// transaction changed the record after it was read; the retry then
// compares against the new state.
func (d *Dialect) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	return d.compareAndSwap(ctx, "update_tuple_with_optimistic_lock", key, oldLockState, func(txn *badger.Txn) error {
		return applyTuple(txn, key, tuple)
	})
}

// RemoveTupleWithOptimisticLock removes the record only if it still
// matches oldLockState.
func (d *Dialect) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	return d.compareAndSwap(ctx, "remove_tuple_with_optimistic_lock", key, oldLockState, func(txn *badger.Txn) error {
		return txn.Delete(tupleKey(key))
	})
}

func (d *Dialect) compareAndSwap(ctx context.Context, op string, key grid.EntityKey, oldLockState *grid.Tuple, write func(txn *badger.Txn) error) (bool, error) {
	if key.IsZero() {
		return false, grid.ErrInvalidKey
	}
	var applied bool
	err := d.update(ctx, op, func(txn *badger.Txn) error {
		applied = false
		r, err := readRecord(txn, tupleKey(key))
		if err != nil {
			return err
		}
		if !r.hasColumns() || !grid.LockStateMatches(r.Columns, oldLockState) {
			return nil
		}
		if err := write(txn); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
