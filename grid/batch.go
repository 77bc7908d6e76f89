package grid

import (
	"context"
	"fmt"
)

// Coordinator flushes operation queues against a dialect: batchable
// dialects receive the whole queue in one ExecuteBatch, others receive one
// call per operation in enqueue order.
type Coordinator struct {
	dialect Dialect
}

// NewCoordinator creates a coordinator for d.
func NewCoordinator(d Dialect) *Coordinator {
	return &Coordinator{dialect: d}
}

// Flush executes and closes q. An empty queue is closed without touching the dialect.
func (c *Coordinator) Flush(ctx context.Context, q *OperationsQueue) error {
	defer q.Close()
	if q.Len() == 0 {
		return nil
	}
	if b, err := AsBatchable(c.dialect); err == nil {
		return b.ExecuteBatch(ctx, q)
	}
	return Drain(ctx, c.dialect, q)
}

// Drain replays every pending operation of q as a single dialect call, in
// order. Dialects without native batching use it from ExecuteBatch too.
// A failure after the first operation is reported as a PartialBatchError.
func Drain(ctx context.Context, d Dialect, q *OperationsQueue) error {
	var applied []Operation
	for {
		op, ok := q.Poll()
		if !ok {
			return nil
		}
		if err := apply(ctx, d, op); err != nil {
			return PartialBatch(applied, err)
		}
		applied = append(applied, op)
	}
}

func apply(ctx context.Context, d Dialect, op Operation) error {
	switch o := op.(type) {
	case InsertOrUpdateTupleOp:
		return d.InsertOrUpdateTuple(ctx, o.Key, o.Tuple)
	case RemoveTupleOp:
		return d.RemoveTuple(ctx, o.Key)
	case InsertOrUpdateAssociationOp:
		return d.InsertOrUpdateAssociation(ctx, o.Key, o.Association)
	case RemoveAssociationOp:
		return d.RemoveAssociation(ctx, o.Key)
	default:
		return fmt.Errorf("grid: operation %s cannot be replayed", op.Type())
	}
}
