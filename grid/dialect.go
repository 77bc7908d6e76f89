package grid

import (
	"context"
	"strings"
)

// TupleConsumer receives tuples during ForEachTuple. Returning an error
// stops the iteration and is returned by ForEachTuple.
type TupleConsumer func(meta *EntityKeyMetadata, tuple *Tuple) error

// Dialect is the contract every backend implements. Calls are synchronous
// and each one is all-or-nothing from the caller's point of view.
//
// The context carries the unit of work (see Begin); dialects never need to
// inspect it.
type Dialect interface {
	// GetTuple returns the stored tuple, or nil if the key is absent.
	GetTuple(ctx context.Context, key EntityKey) (*Tuple, error)

	// CreateTuple returns a new empty tuple for key without persisting it.
	CreateTuple(ctx context.Context, key EntityKey) (*Tuple, error)

	// InsertOrUpdateTuple persists the change log of tuple. Tuples with a
	// SnapshotInsert type are inserted with insert-only semantics where the
	// backend can enforce them, failing with ErrTupleAlreadyExists.
	InsertOrUpdateTuple(ctx context.Context, key EntityKey, tuple *Tuple) error

	RemoveTuple(ctx context.Context, key EntityKey) error

	// GetAssociation returns the stored association, or nil if absent.
	GetAssociation(ctx context.Context, key AssociationKey) (*Association, error)

	CreateAssociation(ctx context.Context, key AssociationKey) (*Association, error)

	InsertOrUpdateAssociation(ctx context.Context, key AssociationKey, assoc *Association) error

	RemoveAssociation(ctx context.Context, key AssociationKey) error

	// IsStoredInEntityStructure reports whether rows of the association
	// live inside the owning entity's record. It must be a pure function of
	// its argument and the dialect's configuration.
	IsStoredInEntityStructure(meta *AssociationKeyMetadata) bool

	// NextValue advances an id source. Concurrent callers never receive
	// the same value for the same key.
	NextValue(ctx context.Context, req NextValueRequest) (int64, error)

	// ForEachTuple feeds every stored tuple of the given tables to consumer.
	ForEachTuple(ctx context.Context, consumer TupleConsumer, metas ...*EntityKeyMetadata) error

	// Capabilities returns the optional extensions this dialect supports.
	Capabilities() Capabilities
}

// Batchable dialects apply a whole queue in one call. When a failure
// leaves part of the queue applied, the error is a *PartialBatchError
// naming the applied operations.
type Batchable interface {
	ExecuteBatch(ctx context.Context, queue *OperationsQueue) error
}

// OptimisticLockAware dialects offer compare-and-swap writes. Both calls
// apply only if the stored state matches oldLockState and report whether
// they did.
type OptimisticLockAware interface {
	UpdateTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState, tuple *Tuple) (bool, error)
	RemoveTupleWithOptimisticLock(ctx context.Context, key EntityKey, oldLockState *Tuple) (bool, error)
}

// IdentityColumnAware dialects generate the key on insert.
type IdentityColumnAware interface {
	CreateTupleForTable(ctx context.Context, meta *EntityKeyMetadata) (*Tuple, error)
	InsertTuple(ctx context.Context, meta *EntityKeyMetadata, tuple *Tuple) (EntityKey, error)
}

// Capability is one optional dialect extension.
type Capability uint8

const (
	CapBatch Capability = 1 << iota
	CapOptimisticLock
	CapIdentityColumns
)

// Capabilities is the set of extensions a dialect declares.
type Capabilities uint8

// NewCapabilities builds a set from individual capabilities.
func NewCapabilities(caps ...Capability) Capabilities {
	var c Capabilities
	for _, cp := range caps {
		c |= Capabilities(cp)
	}
	return c
}

// Has reports whether c contains want.
func (c Capabilities) Has(want Capability) bool { return c&Capabilities(want) != 0 }

func (c Capabilities) String() string {
	var parts []string
	if c.Has(CapBatch) {
		parts = append(parts, "batch")
	}
	if c.Has(CapOptimisticLock) {
		parts = append(parts, "optimistic_lock")
	}
	if c.Has(CapIdentityColumns) {
		parts = append(parts, "identity_columns")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// AsBatchable returns d's batch extension if d declares CapBatch.
func AsBatchable(d Dialect) (Batchable, error) {
	if !d.Capabilities().Has(CapBatch) {
		return nil, ErrUnsupportedCapability
	}
	b, ok := d.(Batchable)
	if !ok {
		return nil, ErrUnsupportedCapability
	}
	return b, nil
}

// AsOptimisticLockAware returns d's compare-and-swap extension if d declares CapOptimisticLock.
func AsOptimisticLockAware(d Dialect) (OptimisticLockAware, error) {
	if !d.Capabilities().Has(CapOptimisticLock) {
		return nil, ErrUnsupportedCapability
	}
	o, ok := d.(OptimisticLockAware)
	if !ok {
		return nil, ErrUnsupportedCapability
	}
	return o, nil
}

// AsIdentityColumnAware returns d's identity extension if d declares CapIdentityColumns.
func AsIdentityColumnAware(d Dialect) (IdentityColumnAware, error) {
	if !d.Capabilities().Has(CapIdentityColumns) {
		return nil, ErrUnsupportedCapability
	}
	i, ok := d.(IdentityColumnAware)
	if !ok {
		return nil, ErrUnsupportedCapability
	}
	return i, nil
}
