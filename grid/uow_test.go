package grid_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacentio/lattice/grid"
)

type handlerSpy struct {
	mu    sync.Mutex
	calls []grid.RollbackContext
}

func (h *handlerSpy) OnRollback(rc grid.RollbackContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, rc)
}

func TestRun_ReportsAppliedOperationsOnce(t *testing.T) {
	base := newMemDialect(grid.CapOptimisticLock)
	d := grid.Chain(base, grid.NewRecorder())
	spy := &handlerSpy{}
	a := grid.MustEntityKey(users, "A")
	b := grid.MustEntityKey(users, "B")

	err := grid.Run(context.Background(), func(ctx context.Context) error {
		if err := d.InsertOrUpdateTuple(ctx, a, userTuple("A")); err != nil {
			return err
		}
		lock := grid.NewTuple()
		lock.Put("version", 1)
		update := grid.NewTupleFromSnapshot(grid.MapSnapshot{"id": "B", "version": 1}, grid.SnapshotUpdate)
		update.Put("version", 2)
		return grid.UpdateTupleWithOptimisticLock(ctx, d, b, lock, update)
	}, grid.WithErrorHandler(spy))

	require.ErrorIs(t, err, grid.ErrConcurrencyConflict)
	require.Len(t, spy.calls, 1)
	rc := spy.calls[0]
	assert.ErrorIs(t, rc.Cause, grid.ErrConcurrencyConflict)
	require.Len(t, rc.AppliedOperations, 1)
	op, ok := rc.AppliedOperations[0].(grid.InsertOrUpdateTupleOp)
	require.True(t, ok, "unexpected operation %T", rc.AppliedOperations[0])
	assert.True(t, op.Key.Equal(a))
}

func TestUnitOfWork_CommitFiresNoHandler(t *testing.T) {
	d := grid.Chain(newMemDialect(), grid.NewRecorder())
	spy := &handlerSpy{}

	ctx, u := grid.Begin(context.Background(), grid.WithErrorHandler(spy))
	require.NoError(t, d.InsertOrUpdateTuple(ctx, grid.MustEntityKey(users, "a"), userTuple("a")))
	assert.Equal(t, grid.StateRecording, u.State())
	assert.Len(t, u.AppliedOperations(), 1)

	u.Commit()
	u.Rollback(errors.New("late"))

	assert.Empty(t, spy.calls)
	assert.Equal(t, grid.StateIdle, u.State())
	assert.Empty(t, u.AppliedOperations())
}

func TestUnitOfWork_RollbackFiresOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := grid.Chain(newMemDialect(), grid.NewRecorder())
	spy := &handlerSpy{}

	ctx, u := grid.Begin(context.Background(), grid.WithErrorHandler(spy), grid.WithLogger(zap.New(core)))
	require.NoError(t, d.RemoveTuple(ctx, grid.MustEntityKey(users, "a")))

	cause := errors.New("flush failed")
	u.Rollback(cause)
	u.Rollback(cause)

	require.Len(t, spy.calls, 1)
	assert.Equal(t, u.ID(), spy.calls[0].UnitOfWorkID)
	assert.Equal(t, cause, spy.calls[0].Cause)
	assert.Equal(t, grid.StateIdle, u.State())
	assert.Equal(t, 1, logs.FilterMessage("unit of work rolled back").Len())
}

func TestUnitOfWork_RollbackBeforeAnyCall(t *testing.T) {
	spy := &handlerSpy{}
	_, u := grid.Begin(context.Background(), grid.WithErrorHandler(spy))
	assert.Equal(t, grid.StateIdle, u.State())

	u.Rollback(errors.New("boom"))
	assert.Empty(t, spy.calls)
}

func TestUnitOfWork_FailedCallIsNotRecorded(t *testing.T) {
	base := newMemDialect()
	base.failOn["InsertOrUpdateTuple"] = grid.Unavailable("put", errors.New("down"))
	d := grid.Chain(base, grid.NewRecorder())
	spy := &handlerSpy{}

	err := grid.Run(context.Background(), func(ctx context.Context) error {
		return d.InsertOrUpdateTuple(ctx, grid.MustEntityKey(users, "a"), userTuple("a"))
	}, grid.WithErrorHandler(spy))

	require.ErrorIs(t, err, grid.ErrBackendUnavailable)
	require.Len(t, spy.calls, 1)
	assert.Empty(t, spy.calls[0].AppliedOperations)
}

func TestRun_PanicRollsBack(t *testing.T) {
	d := grid.Chain(newMemDialect(), grid.NewRecorder())
	spy := &handlerSpy{}

	assert.PanicsWithValue(t, "boom", func() {
		_ = grid.Run(context.Background(), func(ctx context.Context) error {
			if err := d.RemoveTuple(ctx, grid.MustEntityKey(users, "a")); err != nil {
				return err
			}
			panic("boom")
		}, grid.WithErrorHandler(spy))
	})
	require.Len(t, spy.calls, 1)
	assert.Len(t, spy.calls[0].AppliedOperations, 1)
}

func TestRun_Commits(t *testing.T) {
	d := grid.Chain(newMemDialect(), grid.NewRecorder())
	spy := &handlerSpy{}

	err := grid.Run(context.Background(), func(ctx context.Context) error {
		return d.RemoveTuple(ctx, grid.MustEntityKey(users, "a"))
	}, grid.WithErrorHandler(grid.ErrorHandlerFunc(spy.OnRollback)))

	require.NoError(t, err)
	assert.Empty(t, spy.calls)
}

func TestRecorder_OutsideUnitOfWork(t *testing.T) {
	base := newMemDialect()
	d := grid.Chain(base, grid.NewRecorder())

	require.NoError(t, d.InsertOrUpdateTuple(context.Background(), grid.MustEntityKey(users, "a"), userTuple("a")))
	assert.Equal(t, []string{"InsertOrUpdateTuple"}, base.Calls())
}

func TestRecorder_BatchRecordedAsOneOperation(t *testing.T) {
	d := grid.Chain(newMemDialect(grid.CapBatch), grid.NewRecorder())
	ctx, u := grid.Begin(context.Background())

	require.NoError(t, grid.NewCoordinator(d).Flush(ctx, mixedQueue(t)))

	ops := u.AppliedOperations()
	require.Len(t, ops, 1)
	batch, ok := ops[0].(grid.ExecuteBatchOp)
	require.True(t, ok)
	assert.Len(t, batch.Operations, 3)
}

func TestRun_ReportsPartiallyAppliedBatch(t *testing.T) {
	base := newMemDialect(grid.CapBatch)
	base.failOn["RemoveTuple"] = grid.Unavailable("delete", errors.New("down"))
	d := grid.Chain(base, grid.NewRecorder())
	spy := &handlerSpy{}

	err := grid.Run(context.Background(), func(ctx context.Context) error {
		return grid.NewCoordinator(d).Flush(ctx, mixedQueue(t))
	}, grid.WithErrorHandler(spy))

	require.ErrorIs(t, err, grid.ErrBackendUnavailable)
	require.Len(t, spy.calls, 1)
	applied := spy.calls[0].AppliedOperations
	require.Len(t, applied, 1)
	batch, ok := applied[0].(grid.ExecuteBatchOp)
	require.True(t, ok, "unexpected operation %T", applied[0])
	require.Len(t, batch.Operations, 1)
	op, ok := batch.Operations[0].(grid.InsertOrUpdateTupleOp)
	require.True(t, ok, "unexpected operation %T", batch.Operations[0])
	assert.True(t, op.Key.Equal(grid.MustEntityKey(users, "a")))
}

func TestRecorder_FailedBatchRecordsNothing(t *testing.T) {
	base := newMemDialect(grid.CapBatch)
	base.failOn["InsertOrUpdateTuple"] = errors.New("boom")
	d := grid.Chain(base, grid.NewRecorder())
	ctx, u := grid.Begin(context.Background())

	require.Error(t, grid.NewCoordinator(d).Flush(ctx, mixedQueue(t)))
	assert.Empty(t, u.AppliedOperations())
}

func TestRecorder_OptimisticConflictNotRecorded(t *testing.T) {
	d := grid.Chain(newMemDialect(grid.CapOptimisticLock), grid.NewRecorder())
	ctx, u := grid.Begin(context.Background())

	err := grid.RemoveTupleWithOptimisticLock(ctx, d, grid.MustEntityKey(users, "missing"), grid.NewTuple())
	assert.ErrorIs(t, err, grid.ErrConcurrencyConflict)
	assert.Empty(t, u.AppliedOperations())
	assert.Equal(t, grid.StateRecording, u.State())
}

func TestUnitOfWork_Isolated(t *testing.T) {
	d := grid.Chain(newMemDialect(), grid.NewRecorder())

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, u := grid.Begin(context.Background())
			for j := 0; j <= i; j++ {
				_ = d.RemoveTuple(ctx, grid.MustEntityKey(users, j))
			}
			counts[i] = len(u.AppliedOperations())
			u.Commit()
		}()
	}
	wg.Wait()

	for i, n := range counts {
		assert.Equal(t, i+1, n)
	}
}

func TestIsStoredInEntityStructure_Pure(t *testing.T) {
	d := grid.Chain(newMemDialect(), grid.NewRecorder())
	for i := 0; i < 3; i++ {
		assert.True(t, d.IsStoredInEntityStructure(tags))
	}
	assert.Empty(t, d.(*grid.Recorder).Next.(*memDialect).Calls())
}

func TestRegistry(t *testing.T) {
	orders := grid.MustEntityKeyMetadata("orders", "id")
	r := grid.NewRegistry()
	r.RegisterEntity(orders)
	r.RegisterAssociation(users, tags)

	got, ok := r.Entity("users")
	require.True(t, ok)
	assert.True(t, got.Equal(users))
	_, ok = r.Entity("missing")
	assert.False(t, ok)

	require.Len(t, r.Entities(), 2)
	assert.Equal(t, "orders", r.Entities()[0].Table())
	assert.True(t, r.HasAssociations("users"))
	assert.False(t, r.HasAssociations("orders"))
	assert.Len(t, r.AllAssociations(), 1)

	keys, err := r.AssociationKeysOf(grid.MustEntityKey(users, "u1"))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Owner().Equal(grid.MustEntityKey(users, "u1")))
	assert.Equal(t, "user_tags", keys[0].Table())

	keys, err = r.AssociationKeysOf(grid.MustEntityKey(orders, 1))
	require.NoError(t, err)
	assert.Empty(t, keys)
}
