package grid

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RollbackContext is handed to an ErrorHandler when a unit of work aborts.
type RollbackContext struct {
	UnitOfWorkID uuid.UUID

	// Cause is the failure that aborted the unit of work.
	Cause error

	// AppliedOperations lists, in order, every dialect call that completed
	// before the failure.
	AppliedOperations []Operation
}

// ErrorHandler receives the applied operations of an aborted unit of work.
// Compensation is entirely up to the handler.
type ErrorHandler interface {
	OnRollback(rc RollbackContext)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(rc RollbackContext)

func (f ErrorHandlerFunc) OnRollback(rc RollbackContext) { f(rc) }

// UnitOfWorkState is the recording state of a unit of work.
type UnitOfWorkState int

const (
	StateIdle UnitOfWorkState = iota
	StateRecording
	StateReporting
)

func (s UnitOfWorkState) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// UnitOfWorkOption configures Begin.
type UnitOfWorkOption func(*UnitOfWork)

// WithErrorHandler registers the handler invoked on rollback.
func WithErrorHandler(h ErrorHandler) UnitOfWorkOption {
	return func(u *UnitOfWork) { u.handler = h }
}

// WithLogger sets the logger used for rollback reporting.
func WithLogger(l *zap.Logger) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		if l != nil {
			u.logger = l
		}
	}
}

// UnitOfWork owns the applied-operation history of one unit of work. It
// travels in the context passed to dialect calls; nothing is shared between
// units of work.
type UnitOfWork struct {
	id      uuid.UUID
	handler ErrorHandler
	logger  *zap.Logger

	mu        sync.Mutex
	state     UnitOfWorkState
	collector []Operation
	active    bool
	ended     bool
}

type uowKey struct{}

// Begin starts a unit of work and returns a context carrying it.
func Begin(ctx context.Context, opts ...UnitOfWorkOption) (context.Context, *UnitOfWork) {
	u := &UnitOfWork{id: uuid.New(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(u)
	}
	return context.WithValue(ctx, uowKey{}, u), u
}

// FromContext returns the unit of work carried by ctx.
func FromContext(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(uowKey{}).(*UnitOfWork)
	return u, ok
}

func (u *UnitOfWork) ID() uuid.UUID { return u.id }

func (u *UnitOfWork) State() UnitOfWorkState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// AppliedOperations returns the operations recorded so far.
func (u *UnitOfWork) AppliedOperations() []Operation {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.collector)
}

// touch creates the collector on the first intercepted call.
func (u *UnitOfWork) touch() {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended || u.active {
		return
	}
	u.active = true
	u.state = StateRecording
}

func (u *UnitOfWork) record(op Operation) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended {
		return
	}
	u.active = true
	u.state = StateRecording
	u.collector = append(u.collector, op)
}

// Commit ends the unit of work and drops its history. No handler fires.
func (u *UnitOfWork) Commit() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.teardown()
}

// Rollback ends the unit of work after a failure. If a handler is
// registered and the unit of work reached a dialect, the handler receives
// the applied operations exactly once.
func (u *UnitOfWork) Rollback(cause error) {
	u.mu.Lock()
	if u.ended {
		u.mu.Unlock()
		return
	}
	if !u.active || u.handler == nil {
		u.teardown()
		u.mu.Unlock()
		return
	}
	u.state = StateReporting
	rc := RollbackContext{
		UnitOfWorkID:      u.id,
		Cause:             cause,
		AppliedOperations: slices.Clone(u.collector),
	}
	u.ended = true
	u.mu.Unlock()

	u.logger.Warn("unit of work rolled back",
		zap.String("unitOfWork", u.id.String()),
		zap.Int("appliedOperations", len(rc.AppliedOperations)),
		zap.Error(cause),
	)
	defer func() {
		u.mu.Lock()
		u.teardown()
		u.mu.Unlock()
	}()
	u.handler.OnRollback(rc)
}

func (u *UnitOfWork) teardown() {
	u.collector = nil
	u.active = false
	u.ended = true
	u.state = StateIdle
}

// Run executes fn inside a new unit of work. It commits when fn returns
// nil; otherwise it rolls back and returns fn's error unchanged. A panic
// in fn rolls back before it propagates.
func Run(ctx context.Context, fn func(ctx context.Context) error, opts ...UnitOfWorkOption) (err error) {
	ctx, u := Begin(ctx, opts...)
	defer func() {
		if r := recover(); r != nil {
			u.Rollback(fmt.Errorf("grid: panic in unit of work: %v", r))
			panic(r)
		}
	}()
	if err = fn(ctx); err != nil {
		u.Rollback(err)
		return err
	}
	u.Commit()
	return nil
}
