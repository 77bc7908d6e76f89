package grid

import "context"

// Middleware wraps a dialect in a decorating stage.
type Middleware func(next Dialect) Dialect

// Chain composes base with the given stages. The first stage is the
// outermost: Chain(d, a, b) calls a, then b, then d.
func Chain(base Dialect, stages ...Middleware) Dialect {
	d := base
	for i := len(stages) - 1; i >= 0; i-- {
		d = stages[i](d)
	}
	return d
}

// ForwardingDialect delegates every call, including the optional
// extensions, to Next. Stages embed it and override what they intercept.
// Capabilities are those of Next, so callers negotiate through the chain.
type ForwardingDialect struct {
	Next Dialect
}

func (f ForwardingDialect) GetTuple(ctx context.Context, key EntityKey) (*Tuple, error) {
	return f.Next.GetTuple(ctx, key)
}

func (f ForwardingDialect) CreateTuple(ctx context.Context, key EntityKey) (*Tuple, error) {
	return f.Next.CreateTuple(ctx, key)
}

func (f ForwardingDialect) InsertOrUpdateTuple(ctx context.Context, key EntityKey, tuple *Tuple) error {
	return f.Next.InsertOrUpdateTuple(ctx, key, tuple)
}

func (f ForwardingDialect) RemoveTuple(ctx context.Context, key EntityKey) error {
	return f.Next.RemoveTuple(ctx, key)
}

func (f ForwardingDialect) GetAssociation(ctx context.Context, key AssociationKey) (*Association, error) {
	return f.Next.GetAssociation(ctx, key)
}

func (f ForwardingDialect) CreateAssociation(ctx context.Context, key AssociationKey) (*Association, error) {
	return f.Next.CreateAssociation(ctx, key)
}

func (f ForwardingDialect) InsertOrUpdateAssociation(ctx context.Context, key AssociationKey, assoc *Association) error {
	return f.Next.InsertOrUpdateAssociation(ctx, key, assoc)
}

func (f ForwardingDialect) RemoveAssociation(ctx context.Context, key AssociationKey) error {
	return f.Next.RemoveAssociation(ctx, key)
}

func (f ForwardingDialect) IsStoredInEntityStructure(meta *AssociationKeyMetadata) bool {
	return f.Next.IsStoredInEntityStructure(meta)
}

func (f ForwardingDialect) NextValue(ctx context.Context, req NextValueRequest) (int64, error) {
	return f.Next.NextValue(ctx, req)
}

func (f ForwardingDialect) ForEachTuple(ctx context.Context, consumer TupleConsumer, metas ...*EntityKeyMetadata) error {
	return f.Next.ForEachTuple(ctx, consumer, metas...)
}

func (f ForwardingDialect) Capabilities() Capabilities {
	return f.Next.Capabilities()
}

func (f ForwardingDialect) ExecuteBatch(ctx context.Context, queue *OperationsQueue) error {
	b, err := AsBatchable(f.Next)
	if err != nil {
		return err
	}
	return b.ExecuteBatch(ctx, queue)
}

func (f ForwardingDialect) UpdateTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState, tuple *Tuple) (bool, error) {
	o, err := AsOptimisticLockAware(f.Next)
	if err != nil {
		return false, err
	}
	return o.UpdateTupleWithOptimisticLock(ctx, key, oldLockState, tuple)
}

func (f ForwardingDialect) RemoveTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState *Tuple) (bool, error) {
	o, err := AsOptimisticLockAware(f.Next)
	if err != nil {
		return false, err
	}
	return o.RemoveTupleWithOptimisticLock(ctx, key, oldLockState)
}

func (f ForwardingDialect) CreateTupleForTable(ctx context.Context, meta *EntityKeyMetadata) (*Tuple, error) {
	i, err := AsIdentityColumnAware(f.Next)
	if err != nil {
		return nil, err
	}
	return i.CreateTupleForTable(ctx, meta)
}

func (f ForwardingDialect) InsertTuple(ctx context.Context, meta *EntityKeyMetadata, tuple *Tuple) (EntityKey, error) {
	i, err := AsIdentityColumnAware(f.Next)
	if err != nil {
		return EntityKey{}, err
	}
	return i.InsertTuple(ctx, meta, tuple)
}

var (
	_ Dialect             = ForwardingDialect{}
	_ Batchable           = ForwardingDialect{}
	_ OptimisticLockAware = ForwardingDialect{}
	_ IdentityColumnAware = ForwardingDialect{}
)
