package grid

import (
	"fmt"
	"slices"
)

// OperationsQueue accumulates the mutating operations of one flush.
// It is created per flush and closed once executed.
type OperationsQueue struct {
	ops      []Operation
	next     int
	inserted map[string]struct{}
	closed   bool
}

// NewOperationsQueue creates an empty, open queue.
func NewOperationsQueue() *OperationsQueue {
	return &OperationsQueue{inserted: map[string]struct{}{}}
}

// Add enqueues op. Only tuple and association writes and removals can be
// queued.
func (q *OperationsQueue) Add(op Operation) error {
	if q.closed {
		return ErrQueueClosed
	}
	switch o := op.(type) {
	case InsertOrUpdateTupleOp:
		q.inserted[o.Key.ID()] = struct{}{}
	case RemoveTupleOp:
		delete(q.inserted, o.Key.ID())
	case InsertOrUpdateAssociationOp, RemoveAssociationOp:
	default:
		return fmt.Errorf("grid: operation %s cannot be queued", op.Type())
	}
	q.ops = append(q.ops, op)
	return nil
}

// Poll removes and returns the next pending operation.
func (q *OperationsQueue) Poll() (Operation, bool) {
	if q.next >= len(q.ops) {
		return nil, false
	}
	op := q.ops[q.next]
	q.ops[q.next] = nil
	q.next++
	return op, true
}

// Len returns the number of pending operations.
func (q *OperationsQueue) Len() int { return len(q.ops) - q.next }

// Operations returns the pending operations in enqueue order without
// consuming them.
func (q *OperationsQueue) Operations() []Operation { return slices.Clone(q.ops[q.next:]) }

// ContainsKey reports whether a pending write targets key.
func (q *OperationsQueue) ContainsKey(key EntityKey) bool {
	_, ok := q.inserted[key.ID()]
	return ok
}

// Close marks the queue as executed; later Adds fail.
func (q *OperationsQueue) Close() {
	q.closed = true
	q.inserted = map[string]struct{}{}
}

func (q *OperationsQueue) IsClosed() bool { return q.closed }
