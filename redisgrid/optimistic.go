package redisgrid

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
)

// UpdateTupleWithOptimisticLock applies tuple's changes only if the stored
// hash still matches oldLockState. The comparison runs under WATCH, so a
// write that lands between read and EXEC forces a fresh comparison.
func (d *Dialect) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	cmds, err := d.tupleCommands(key, tuple)
	if err != nil {
		return false, err
	}
	return d.compareAndSwap(ctx, key, oldLockState, cmds)
}

// RemoveTupleWithOptimisticLock deletes the hash only if it still matches
// oldLockState.
func (d *Dialect) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	if key.IsZero() {
		return false, grid.ErrInvalidKey
	}
	k := d.tupleKey(key)
	return d.compareAndSwap(ctx, key, oldLockState, []command{func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, k)
	}})
}

func (d *Dialect) compareAndSwap(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple, cmds []command) (bool, error) {
	k := d.tupleKey(key)
	var applied bool
	err := d.watch(ctx, func(tx *redis.Tx) error {
		applied = false
		fields, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return mapError("hgetall", err)
		}
		current, err := decodeTuple(fields)
		if err != nil {
			return err
		}
		if len(current) == 0 || !grid.LockStateMatches(current, oldLockState) {
			return nil
		}
		if err := d.execTx(ctx, tx, cmds); err != nil {
			return err
		}
		applied = true
		return nil
	}, k)
	if err != nil {
		return false, err
	}
	return applied, nil
}
