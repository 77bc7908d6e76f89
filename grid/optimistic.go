package grid

import "context"

// UpdateTupleWithOptimisticLock applies tuple only if the stored state still
// matches oldLockState. A lost race is reported as a *ConflictError.
func UpdateTupleWithOptimisticLock(ctx context.Context, d Dialect, key EntityKey, oldLockState, tuple *Tuple) error {
	o, err := AsOptimisticLockAware(d)
	if err != nil {
		return err
	}
	ok, err := o.UpdateTupleWithOptimisticLock(ctx, key, oldLockState, tuple)
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Key: key, Op: OpUpdateTupleWithOptimisticLock}
	}
	return nil
}

// RemoveTupleWithOptimisticLock removes key only if the stored state still
// matches oldLockState. A lost race is reported as a *ConflictError.
func RemoveTupleWithOptimisticLock(ctx context.Context, d Dialect, key EntityKey, oldLockState *Tuple) error {
	o, err := AsOptimisticLockAware(d)
	if err != nil {
		return err
	}
	ok, err := o.RemoveTupleWithOptimisticLock(ctx, key, oldLockState)
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Key: key, Op: OpRemoveTupleWithOptimisticLock}
	}
	return nil
}

// LockStateMatches reports whether every column of oldLockState has the
// same value in current. Dialects that compare in memory use it.
func LockStateMatches(current map[string]any, oldLockState *Tuple) bool {
	if oldLockState == nil {
		return true
	}
	for _, c := range oldLockState.ColumnNames() {
		want, _ := oldLockState.Get(c)
		got, ok := current[c]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two column values. Numbers compare by value so
// decoded values match the ones the caller put.
func ValuesEqual(a, b any) bool {
	return canonicalValue(a) == canonicalValue(b)
}
