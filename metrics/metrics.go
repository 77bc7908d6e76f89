// Package metrics exposes Prometheus metrics for grid dialect calls.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacentio/lattice/grid"
)

// Metrics holds the dialect call metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	BatchSize         prometheus.Histogram
}

// New creates and registers the metrics with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "dialect",
			Name:      "operations_total",
			Help:      "Total number of dialect calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "dialect",
			Name:      "operation_duration_seconds",
			Help:      "Histogram of dialect call durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "dialect",
			Name:      "batch_operations",
			Help:      "Histogram of the number of operations per executed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Observe records one call.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	m.OperationsTotal.WithLabelValues(op, grid.Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the metrics collected by g. A nil g serves the default
// gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns a stage recording every dialect call.
func (m *Metrics) Middleware() grid.Middleware {
	return func(next grid.Dialect) grid.Dialect {
		return &stage{ForwardingDialect: grid.ForwardingDialect{Next: next}, m: m}
	}
}

type stage struct {
	grid.ForwardingDialect
	m *Metrics
}

func (s *stage) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.Next.GetTuple(ctx, key)
	s.m.Observe("get_tuple", start, err)
	return t, err
}

func (s *stage) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.Next.CreateTuple(ctx, key)
	s.m.Observe(grid.OpCreateTuple.String(), start, err)
	return t, err
}

func (s *stage) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	start := time.Now()
	err := s.Next.InsertOrUpdateTuple(ctx, key, tuple)
	s.m.Observe(grid.OpInsertOrUpdateTuple.String(), start, err)
	return err
}

func (s *stage) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	start := time.Now()
	err := s.Next.RemoveTuple(ctx, key)
	s.m.Observe(grid.OpRemoveTuple.String(), start, err)
	return err
}

func (s *stage) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	start := time.Now()
	a, err := s.Next.GetAssociation(ctx, key)
	s.m.Observe("get_association", start, err)
	return a, err
}

func (s *stage) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	start := time.Now()
	a, err := s.Next.CreateAssociation(ctx, key)
	s.m.Observe(grid.OpCreateAssociation.String(), start, err)
	return a, err
}

func (s *stage) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	start := time.Now()
	err := s.Next.InsertOrUpdateAssociation(ctx, key, assoc)
	s.m.Observe(grid.OpInsertOrUpdateAssociation.String(), start, err)
	return err
}

func (s *stage) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	start := time.Now()
	err := s.Next.RemoveAssociation(ctx, key)
	s.m.Observe(grid.OpRemoveAssociation.String(), start, err)
	return err
}

func (s *stage) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	start := time.Now()
	v, err := s.Next.NextValue(ctx, req)
	s.m.Observe("next_value", start, err)
	return v, err
}

func (s *stage) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	start := time.Now()
	err := s.Next.ForEachTuple(ctx, consumer, metas...)
	s.m.Observe("for_each_tuple", start, err)
	return err
}

func (s *stage) ExecuteBatch(ctx context.Context, queue *grid.OperationsQueue) error {
	start := time.Now()
	size := queue.Len()
	err := s.ForwardingDialect.ExecuteBatch(ctx, queue)
	s.m.Observe(grid.OpExecuteBatch.String(), start, err)
	if err == nil {
		s.m.BatchSize.Observe(float64(size))
	}
	return err
}

// Optimistic calls that lose the race count as conflicts.
func (s *stage) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	start := time.Now()
	ok, err := s.ForwardingDialect.UpdateTupleWithOptimisticLock(ctx, key, oldLockState, tuple)
	s.m.Observe(grid.OpUpdateTupleWithOptimisticLock.String(), start, lockOutcome(ok, err))
	return ok, err
}

func (s *stage) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	start := time.Now()
	ok, err := s.ForwardingDialect.RemoveTupleWithOptimisticLock(ctx, key, oldLockState)
	s.m.Observe(grid.OpRemoveTupleWithOptimisticLock.String(), start, lockOutcome(ok, err))
	return ok, err
}

func (s *stage) CreateTupleForTable(ctx context.Context, meta *grid.EntityKeyMetadata) (*grid.Tuple, error) {
	start := time.Now()
	t, err := s.ForwardingDialect.CreateTupleForTable(ctx, meta)
	s.m.Observe(grid.OpCreateTupleWithTable.String(), start, err)
	return t, err
}

func (s *stage) InsertTuple(ctx context.Context, meta *grid.EntityKeyMetadata, tuple *grid.Tuple) (grid.EntityKey, error) {
	start := time.Now()
	key, err := s.ForwardingDialect.InsertTuple(ctx, meta, tuple)
	s.m.Observe(grid.OpInsertTuple.String(), start, err)
	return key, err
}

func lockOutcome(ok bool, err error) error {
	if err == nil && !ok {
		return grid.ErrConcurrencyConflict
	}
	return err
}
