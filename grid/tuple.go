package grid

import (
	"maps"
	"slices"
)

// Snapshot is the as-loaded, backend-neutral state of a record.
type Snapshot interface {
	Get(column string) (any, bool)
	ColumnNames() []string
	IsEmpty() bool
}

// MapSnapshot is a Snapshot backed by a plain map.
type MapSnapshot map[string]any

func (s MapSnapshot) Get(column string) (any, bool) {
	v, ok := s[column]
	return v, ok
}

func (s MapSnapshot) ColumnNames() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s MapSnapshot) IsEmpty() bool { return len(s) == 0 }

// EmptySnapshot is the snapshot of a record that was never persisted.
var EmptySnapshot Snapshot = MapSnapshot(nil)

// SnapshotType tells dialects whether a tuple is new or was loaded.
type SnapshotType int

const (
	SnapshotUnknown SnapshotType = iota
	SnapshotInsert
	SnapshotUpdate
)

func (t SnapshotType) String() string {
	switch t {
	case SnapshotInsert:
		return "insert"
	case SnapshotUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// TupleOperationType is the kind of one change log entry.
type TupleOperationType int

const (
	PutOperation TupleOperationType = iota
	RemoveOperation
)

func (t TupleOperationType) String() string {
	if t == RemoveOperation {
		return "remove"
	}
	return "put"
}

// TupleOperation is one entry of a tuple change log.
type TupleOperation struct {
	Type   TupleOperationType
	Column string
	Value  any
}

// Tuple is a flat change-tracked record: a snapshot plus the puts and
// removes applied since it was loaded. Dialects persist the change log.
//
// A Tuple is not safe for concurrent mutation.
type Tuple struct {
	snapshot     Snapshot
	snapshotType SnapshotType
	ops          []TupleOperation
	latest       map[string]int
}

// NewTuple creates an empty tuple that has not been persisted yet.
func NewTuple() *Tuple {
	return NewTupleFromSnapshot(EmptySnapshot, SnapshotInsert)
}

// NewTupleFromSnapshot wraps a loaded snapshot.
func NewTupleFromSnapshot(s Snapshot, t SnapshotType) *Tuple {
	if s == nil {
		s = EmptySnapshot
	}
	return &Tuple{snapshot: s, snapshotType: t, latest: map[string]int{}}
}

func (t *Tuple) Snapshot() Snapshot         { return t.snapshot }
func (t *Tuple) SnapshotType() SnapshotType { return t.snapshotType }

// SetSnapshotType changes the snapshot type, e.g. once an insert was flushed.
func (t *Tuple) SetSnapshotType(st SnapshotType) { t.snapshotType = st }

// Get returns the current value of column.
func (t *Tuple) Get(column string) (any, bool) {
	if i, ok := t.latest[column]; ok {
		op := t.ops[i]
		if op.Type == RemoveOperation {
			return nil, false
		}
		return op.Value, true
	}
	return t.snapshot.Get(column)
}

// Put sets column to value. A nil value removes the column.
// Put panics if column is empty.
func (t *Tuple) Put(column string, value any) {
	if column == "" {
		panic("grid: tuple column name must not be empty")
	}
	if value == nil {
		t.Remove(column)
		return
	}
	t.append(TupleOperation{Type: PutOperation, Column: column, Value: value})
}

// Remove removes column.
func (t *Tuple) Remove(column string) {
	t.append(TupleOperation{Type: RemoveOperation, Column: column})
}

func (t *Tuple) append(op TupleOperation) {
	t.latest[op.Column] = len(t.ops)
	t.ops = append(t.ops, op)
}

// ColumnNames returns the sorted names of the columns currently present.
func (t *Tuple) ColumnNames() []string {
	names := make(map[string]struct{})
	for _, c := range t.snapshot.ColumnNames() {
		names[c] = struct{}{}
	}
	for c, i := range t.latest {
		if t.ops[i].Type == RemoveOperation {
			delete(names, c)
		} else {
			names[c] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(names))
}

// Operations returns the change log in the order it was applied.
func (t *Tuple) Operations() []TupleOperation { return slices.Clone(t.ops) }

// HasChanges reports whether the change log is non-empty.
func (t *Tuple) HasChanges() bool { return len(t.ops) > 0 }

// Map returns the current content as a new map.
func (t *Tuple) Map() map[string]any {
	base := make(map[string]any)
	for _, c := range t.snapshot.ColumnNames() {
		v, _ := t.snapshot.Get(c)
		base[c] = v
	}
	return ApplyOperations(base, t.ops)
}

// ApplyOperations replays ops onto base and returns it. Replaying the same
// log onto equal bases yields equal results.
func ApplyOperations(base map[string]any, ops []TupleOperation) map[string]any {
	if base == nil {
		base = make(map[string]any)
	}
	for _, op := range ops {
		switch op.Type {
		case PutOperation:
			base[op.Column] = op.Value
		case RemoveOperation:
			delete(base, op.Column)
		}
	}
	return base
}
