package grid_test

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/jacentio/lattice/grid"
)

// memDialect keeps tuples in a map and logs every call by name.
type memDialect struct {
	mu      sync.Mutex
	caps    grid.Capabilities
	tuples  map[string]map[string]any
	assocs  map[string]*grid.Association
	calls   []string
	failOn  map[string]error
	counter map[string]int64
}

func newMemDialect(caps ...grid.Capability) *memDialect {
	return &memDialect{
		caps:    grid.NewCapabilities(caps...),
		tuples:  map[string]map[string]any{},
		assocs:  map[string]*grid.Association{},
		failOn:  map[string]error{},
		counter: map[string]int64{},
	}
}

func (m *memDialect) call(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.failOn[name]
}

func (m *memDialect) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memDialect) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	if err := m.call("GetTuple"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tuples[key.ID()]
	if !ok {
		return nil, nil
	}
	return grid.NewTupleFromSnapshot(grid.MapSnapshot(maps.Clone(stored)), grid.SnapshotUpdate), nil
}

func (m *memDialect) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	if err := m.call("CreateTuple"); err != nil {
		return nil, err
	}
	return grid.NewTuple(), nil
}

func (m *memDialect) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	if err := m.call("InsertOrUpdateTuple"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.tuples[key.ID()]
	if tuple.SnapshotType() == grid.SnapshotInsert && exists {
		return &grid.TupleAlreadyExistsError{Key: key}
	}
	m.tuples[key.ID()] = grid.ApplyOperations(maps.Clone(stored), tuple.Operations())
	return nil
}

func (m *memDialect) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	if err := m.call("RemoveTuple"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tuples, key.ID())
	return nil
}

func (m *memDialect) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	if err := m.call("GetAssociation"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assocs[key.ID()]
	if !ok {
		return nil, nil
	}
	return grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(a.Rows()...)), nil
}

func (m *memDialect) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	if err := m.call("CreateAssociation"); err != nil {
		return nil, err
	}
	return grid.NewAssociation(), nil
}

func (m *memDialect) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	if err := m.call("InsertOrUpdateAssociation"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assocs[key.ID()] = grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(assoc.Rows()...))
	return nil
}

func (m *memDialect) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	if err := m.call("RemoveAssociation"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assocs, key.ID())
	return nil
}

func (m *memDialect) IsStoredInEntityStructure(meta *grid.AssociationKeyMetadata) bool {
	return meta.Kind() == grid.AssociationKindEmbeddedCollection
}

func (m *memDialect) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	if err := m.call("NextValue"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := req.Key.String()
	v, ok := m.counter[k]
	if !ok {
		v = req.InitialValue
	} else {
		v += req.Step()
	}
	m.counter[k] = v
	return v, nil
}

func (m *memDialect) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	return errors.New("not implemented")
}

func (m *memDialect) Capabilities() grid.Capabilities { return m.caps }

func (m *memDialect) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	if err := m.call("ExecuteBatch"); err != nil {
		return err
	}
	return grid.Drain(ctx, m, queue)
}

func (m *memDialect) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	if err := m.call("UpdateTupleWithOptimisticLock"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tuples[key.ID()]
	if !ok || !grid.LockStateMatches(stored, oldLockState) {
		return false, nil
	}
	m.tuples[key.ID()] = grid.ApplyOperations(maps.Clone(stored), tuple.Operations())
	return true, nil
}

func (m *memDialect) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	if err := m.call("RemoveTupleWithOptimisticLock"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tuples[key.ID()]
	if !ok || !grid.LockStateMatches(stored, oldLockState) {
		return false, nil
	}
	delete(m.tuples, key.ID())
	return true, nil
}

var (
	_ grid.Dialect             = (*memDialect)(nil)
	_ grid.Batchable           = (*memDialect)(nil)
	_ grid.OptimisticLockAware = (*memDialect)(nil)
)
