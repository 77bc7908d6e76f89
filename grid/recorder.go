package grid

import (
	"context"
	"errors"
)

// NewRecorder returns the stage that records every successfully applied
// mutating call into the unit of work found in the call's context. Calls
// made outside a unit of work pass through unrecorded.
func NewRecorder() Middleware {
	return func(next Dialect) Dialect {
		return &Recorder{ForwardingDialect{Next: next}}
	}
}

// Recorder is the operation-recording stage.
type Recorder struct {
	ForwardingDialect
}

func begin(ctx context.Context) *UnitOfWork {
	u, _ := FromContext(ctx)
	u.touch()
	return u
}

func (r *Recorder) CreateTuple(ctx context.Context, key EntityKey) (*Tuple, error) {
	u := begin(ctx)
	t, err := r.Next.CreateTuple(ctx, key)
	if err == nil {
		u.record(CreateTupleOp{Key: key})
	}
	return t, err
}

func (r *Recorder) InsertOrUpdateTuple(ctx context.Context, key EntityKey, tuple *Tuple) error {
	u := begin(ctx)
	err := r.Next.InsertOrUpdateTuple(ctx, key, tuple)
	if err == nil {
		u.record(InsertOrUpdateTupleOp{Key: key, Tuple: tuple})
	}
	return err
}

func (r *Recorder) RemoveTuple(ctx context.Context, key EntityKey) error {
	u := begin(ctx)
	err := r.Next.RemoveTuple(ctx, key)
	if err == nil {
		u.record(RemoveTupleOp{Key: key})
	}
	return err
}

func (r *Recorder) CreateAssociation(ctx context.Context, key AssociationKey) (*Association, error) {
	u := begin(ctx)
	a, err := r.Next.CreateAssociation(ctx, key)
	if err == nil {
		u.record(CreateAssociationOp{Key: key})
	}
	return a, err
}

func (r *Recorder) InsertOrUpdateAssociation(ctx context.Context, key AssociationKey, assoc *Association) error {
	u := begin(ctx)
	err := r.Next.InsertOrUpdateAssociation(ctx, key, assoc)
	if err == nil {
		u.record(InsertOrUpdateAssociationOp{Key: key, Association: assoc})
	}
	return err
}

func (r *Recorder) RemoveAssociation(ctx context.Context, key AssociationKey) error {
	u := begin(ctx)
	err := r.Next.RemoveAssociation(ctx, key)
	if err == nil {
		u.record(RemoveAssociationOp{Key: key})
	}
	return err
}

func (r *Recorder) ExecuteBatch(ctx context.Context, queue *OperationsQueue) error {
	b, err := AsBatchable(r.Next)
	if err != nil {
		return err
	}
	u := begin(ctx)
	ops := queue.Operations()
	if err := b.ExecuteBatch(ctx, queue); err != nil {
		var partial *PartialBatchError
		if errors.As(err, &partial) {
			u.record(ExecuteBatchOp{Operations: partial.Applied})
		}
		return err
	}
	u.record(ExecuteBatchOp{Operations: ops})
	return nil
}

// UpdateTupleWithOptimisticLock records the update only when it was applied.
func (r *Recorder) UpdateTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState, tuple *Tuple) (bool, error) {
	o, err := AsOptimisticLockAware(r.Next)
	if err != nil {
		return false, err
	}
	u := begin(ctx)
	ok, err := o.UpdateTupleWithOptimisticLock(ctx, key, oldLockState, tuple)
	if err == nil && ok {
		u.record(UpdateTupleWithOptimisticLockOp{Key: key, OldLockState: oldLockState, Tuple: tuple})
	}
	return ok, err
}

// RemoveTupleWithOptimisticLock records the removal only when it was applied.
func (r *Recorder) RemoveTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState *Tuple) (bool, error) {
	o, err := AsOptimisticLockAware(r.Next)
	if err != nil {
		return false, err
	}
	u := begin(ctx)
	ok, err := o.RemoveTupleWithOptimisticLock(ctx, key, oldLockState)
	if err == nil && ok {
		u.record(RemoveTupleWithOptimisticLockOp{Key: key, OldLockState: oldLockState})
	}
	return ok, err
}

func (r *Recorder) CreateTupleForTable(ctx context.Context, meta *EntityKeyMetadata) (*Tuple, error) {
	i, err := AsIdentityColumnAware(r.Next)
	if err != nil {
		return nil, err
	}
	u := begin(ctx)
	t, err := i.CreateTupleForTable(ctx, meta)
	if err == nil {
		u.record(CreateTupleWithTableOp{Metadata: meta})
	}
	return t, err
}

func (r *Recorder) InsertTuple(ctx context.Context, meta *EntityKeyMetadata, tuple *Tuple) (EntityKey, error) {
	i, err := AsIdentityColumnAware(r.Next)
	if err != nil {
		return EntityKey{}, err
	}
	u := begin(ctx)
	key, err := i.InsertTuple(ctx, meta, tuple)
	if err == nil {
		u.record(InsertTupleOp{Metadata: meta, Key: key, Tuple: tuple})
	}
	return key, err
}
