package redisgrid

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
)

// ExecuteBatch applies the whole queue in a single MULTI/EXEC. Hashes
// inserted by the queue are watched, and checked for existence before
// anything is sent, so a duplicate insert leaves the store untouched.
//
// Redis does not roll back a transaction when one of its commands fails at
// runtime; that only happens for a key holding the wrong type.
func (d *Dialect) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	var ops []grid.Operation
	for op, ok := queue.Poll(); ok; op, ok = queue.Poll() {
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return nil
	}

	var cmds []command
	var watched []string
	seen := map[string]bool{}
	for _, op := range ops {
		c, err := d.batchCommands(op)
		if err != nil {
			return err
		}
		cmds = append(cmds, c...)
		if o, ok := op.(grid.InsertOrUpdateTupleOp); ok && o.Tuple.SnapshotType() == grid.SnapshotInsert {
			k := d.tupleKey(o.Key)
			if !seen[k] {
				seen[k] = true
				watched = append(watched, k)
			}
		}
	}
	if len(watched) == 0 {
		return d.exec(ctx, cmds)
	}

	return d.watch(ctx, func(tx *redis.Tx) error {
		if err := d.checkInserts(ctx, tx, ops); err != nil {
			return err
		}
		return d.execTx(ctx, tx, cmds)
	}, watched...)
}

// checkInserts replays the queue's effect on tuple presence and fails on
// the first insert of a key that would already exist at that point.
func (d *Dialect) checkInserts(ctx context.Context, tx *redis.Tx, ops []grid.Operation) error {
	present := map[string]bool{}
	for _, op := range ops {
		switch o := op.(type) {
		case grid.InsertOrUpdateTupleOp:
			k := d.tupleKey(o.Key)
			if o.Tuple.SnapshotType() == grid.SnapshotInsert {
				exists, known := present[k]
				if !known {
					var err error
					if exists, err = hasColumns(ctx, tx, k); err != nil {
						return err
					}
				}
				if exists {
					return &grid.TupleAlreadyExistsError{Key: o.Key}
				}
			}
			present[k] = true
		case grid.RemoveTupleOp:
			present[d.tupleKey(o.Key)] = false
		}
	}
	return nil
}

func (d *Dialect) batchCommands(op grid.Operation) ([]command, error) {
	switch o := op.(type) {
	case grid.InsertOrUpdateTupleOp:
		return d.tupleCommands(o.Key, o.Tuple)
	case grid.RemoveTupleOp:
		if o.Key.IsZero() {
			return nil, fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
		}
		k := d.tupleKey(o.Key)
		return []command{func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.Del(ctx, k)
		}}, nil
	case grid.InsertOrUpdateAssociationOp:
		return d.associationCommands(o.Key, o.Association)
	case grid.RemoveAssociationOp:
		return d.removeAssociationCommands(o.Key), nil
	}
	return nil, fmt.Errorf("redisgrid: operation %s cannot be batched", op.Type())
}
