// Package logging provides a grid middleware stage that logs every dialect
// call with zap.
package logging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jacentio/lattice/grid"
)

// New returns a stage logging successful calls at Debug and failed calls
// at Warn. A nil logger disables logging.
func New(logger *zap.Logger) grid.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next grid.Dialect) grid.Dialect {
		return &stage{ForwardingDialect: grid.ForwardingDialect{Next: next}, logger: logger}
	}
}

type stage struct {
	grid.ForwardingDialect
	logger *zap.Logger
}

func (s *stage) log(op string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		s.logger.Warn("dialect call failed", append(fields, zap.String("outcome", grid.Outcome(err)), zap.Error(err))...)
		return
	}
	if ce := s.logger.Check(zap.DebugLevel, "dialect call"); ce != nil {
		ce.Write(fields...)
	}
}

func entity(key grid.EntityKey) zap.Field { return zap.Stringer("key", key) }

func association(key grid.AssociationKey) zap.Field { return zap.Stringer("key", key) }

func (s *stage) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.Next.GetTuple(ctx, key)
	s.log("get_tuple", start, err, entity(key), zap.Bool("found", t != nil))
	return t, err
}

func (s *stage) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.Next.CreateTuple(ctx, key)
	s.log(grid.OpCreateTuple.String(), start, err, entity(key))
	return t, err
}

func (s *stage) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	start := time.Now()
	err := s.Next.InsertOrUpdateTuple(ctx, key, tuple)
	s.log(grid.OpInsertOrUpdateTuple.String(), start, err,
		entity(key),
		zap.Stringer("snapshot", tuple.SnapshotType()),
		zap.Int("changes", len(tuple.Operations())),
	)
	return err
}

func (s *stage) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	start := time.Now()
	err := s.Next.RemoveTuple(ctx, key)
	s.log(grid.OpRemoveTuple.String(), start, err, entity(key))
	return err
}

func (s *stage) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	start := time.Now()
	a, err := s.Next.GetAssociation(ctx, key)
	s.log("get_association", start, err, association(key), zap.Bool("found", a != nil))
	return a, err
}

func (s *stage) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	start := time.Now()
	a, err := s.Next.CreateAssociation(ctx, key)
	s.log(grid.OpCreateAssociation.String(), start, err, association(key))
	return a, err
}

func (s *stage) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	start := time.Now()
	err := s.Next.InsertOrUpdateAssociation(ctx, key, assoc)
	s.log(grid.OpInsertOrUpdateAssociation.String(), start, err,
		association(key),
		zap.Int("changes", len(assoc.Operations())),
	)
	return err
}

func (s *stage) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	start := time.Now()
	err := s.Next.RemoveAssociation(ctx, key)
	s.log(grid.OpRemoveAssociation.String(), start, err, association(key))
	return err
}

func (s *stage) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	start := time.Now()
	v, err := s.Next.NextValue(ctx, req)
	s.log("next_value", start, err, zap.Stringer("idSource", req.Key), zap.Int64("value", v))
	return v, err
}

func (s *stage) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	start := time.Now()
	n := 0
	err := s.Next.ForEachTuple(ctx, func(meta *grid.EntityKeyMetadata, t *grid.Tuple) error {
		n++
		return consumer(meta, t)
	}, metas...)
	s.log("for_each_tuple", start, err, zap.Int("tables", len(metas)), zap.Int("tuples", n))
	return err
}

func (s *stage) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	start := time.Now()
	size := queue.Len()
	err := s.ForwardingDialect.ExecuteBatch(ctx, queue)
	s.log(grid.OpExecuteBatch.String(), start, err, zap.Int("operations", size))
	return err
}

func (s *stage) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	start := time.Now()
	ok, err := s.ForwardingDialect.UpdateTupleWithOptimisticLock(ctx, key, oldLockState, tuple)
	s.log(grid.OpUpdateTupleWithOptimisticLock.String(), start, err, entity(key), zap.Bool("applied", ok))
	return ok, err
}

func (s *stage) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	start := time.Now()
	ok, err := s.ForwardingDialect.RemoveTupleWithOptimisticLock(ctx, key, oldLockState)
	s.log(grid.OpRemoveTupleWithOptimisticLock.String(), start, err, entity(key), zap.Bool("applied", ok))
	return ok, err
}

func (s *stage) CreateTupleForTable(ctx context.Context, meta *grid.EntityKeyMetadata) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.ForwardingDialect.CreateTupleForTable(ctx, meta)
	s.log(grid.OpCreateTupleWithTable.String(), start, err, zap.String("table", meta.Table()))
	return t, err
}

func (s *stage) InsertTuple(ctx context.Context, meta *grid.EntityKeyMetadata, tuple *grid.Tuple) (grid.EntityKey, error) {
	start := time.Now()
	key, err := s.ForwardingDialect.InsertTuple(ctx, meta, tuple)
	s.log(grid.OpInsertTuple.String(), start, err, zap.String("table", meta.Table()), entity(key))
	return key, err
}
