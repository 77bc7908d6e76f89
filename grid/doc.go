// Package grid is the backend-neutral persistence core: keys, change-tracked
// records, the dialect contract every backend implements, operation
// batching and the recording of applied operations for compensation.
//
// # Keys
//
// [EntityKey] identifies one record, [AssociationKey] a whole association
// owned by an entity, [RowKey] one row inside an association and
// [IdSourceKey] a counter or sequence. Keys are immutable and their hash is
// computed at construction; [EntityKey.ID] can index Go maps.
//
// # Records
//
// A [Tuple] wraps the snapshot a backend returned plus a change log of
// puts and removes. An [Association] does the same for rows keyed by
// [RowKey]. Dialects persist the change log, not the snapshot.
//
// # Dialects
//
// Every backend implements [Dialect]. Optional extensions are declared
// through [Dialect.Capabilities] and obtained with [AsBatchable],
// [AsOptimisticLockAware] and [AsIdentityColumnAware]:
//
//	caps := d.Capabilities()
//	if caps.Has(grid.CapBatch) { ... }
//
// Decorating stages ([Middleware]) are composed with [Chain]:
//
//	d := grid.Chain(base,
//	    logging.New(logger),
//	    m.Middleware(),
//	    grid.NewRecorder(),
//	)
//
// # Units of work
//
// [Begin] (or [Run]) attaches a [UnitOfWork] to a context. The recorder
// stage appends every successfully applied call to it. On [UnitOfWork.Commit]
// the history is dropped; on [UnitOfWork.Rollback] a registered
// [ErrorHandler] receives it:
//
//	err := grid.Run(ctx, func(ctx context.Context) error {
//	    return coordinator.Flush(ctx, queue)
//	}, grid.WithErrorHandler(handler))
//
// # Errors
//
//   - [ErrBackendUnavailable] - the backend could not be reached
//   - [ErrBackendRejected] - the backend refused the operation
//   - [ErrTupleAlreadyExists] - insert-only semantics violated
//   - [ErrConcurrencyConflict] - optimistic lock check failed
//   - [ErrUnsupportedCapability] - optional extension not declared
package grid
