package grid

import "slices"

// AssociationSnapshot is the as-loaded state of an association.
type AssociationSnapshot interface {
	Get(key RowKey) (*Tuple, bool)
	ContainsKey(key RowKey) bool
	Size() int
	RowKeys() []RowKey
}

// AssociationRow pairs a row key with its row.
type AssociationRow struct {
	Key   RowKey
	Tuple *Tuple
}

type mapAssociationSnapshot struct {
	rows  []AssociationRow
	index map[string]int
}

// NewMapAssociationSnapshot creates a snapshot that keeps rows in load
// order. A later row with the same key replaces an earlier one.
func NewMapAssociationSnapshot(rows ...AssociationRow) AssociationSnapshot {
	s := &mapAssociationSnapshot{index: make(map[string]int, len(rows))}
	for _, r := range rows {
		if i, ok := s.index[r.Key.ID()]; ok {
			s.rows[i] = r
			continue
		}
		s.index[r.Key.ID()] = len(s.rows)
		s.rows = append(s.rows, r)
	}
	return s
}

func (s *mapAssociationSnapshot) Get(key RowKey) (*Tuple, bool) {
	i, ok := s.index[key.ID()]
	if !ok {
		return nil, false
	}
	return s.rows[i].Tuple, true
}

func (s *mapAssociationSnapshot) ContainsKey(key RowKey) bool {
	_, ok := s.index[key.ID()]
	return ok
}

func (s *mapAssociationSnapshot) Size() int { return len(s.rows) }

func (s *mapAssociationSnapshot) RowKeys() []RowKey {
	keys := make([]RowKey, len(s.rows))
	for i, r := range s.rows {
		keys[i] = r.Key
	}
	return keys
}

// AssociationOperationType is the kind of one association change log entry.
type AssociationOperationType int

const (
	PutRowOperation AssociationOperationType = iota
	RemoveRowOperation
	ClearOperation
)

func (t AssociationOperationType) String() string {
	switch t {
	case RemoveRowOperation:
		return "remove_row"
	case ClearOperation:
		return "clear"
	default:
		return "put_row"
	}
}

// AssociationOperation is one entry of an association change log. Key and
// Value are unset for ClearOperation.
type AssociationOperation struct {
	Type  AssociationOperationType
	Key   RowKey
	Value *Tuple
}

// Association is a change-tracked collection of rows keyed by RowKey.
//
// An Association is not safe for concurrent mutation.
type Association struct {
	snapshot AssociationSnapshot
	ops      []AssociationOperation
	latest   map[string]int
	cleared  bool
	// clearAt is the index of the first operation after the last Clear.
	clearAt int
}

// NewAssociation creates an empty association.
func NewAssociation() *Association {
	return NewAssociationFromSnapshot(nil)
}

// NewAssociationFromSnapshot wraps a loaded snapshot.
func NewAssociationFromSnapshot(s AssociationSnapshot) *Association {
	if s == nil {
		s = NewMapAssociationSnapshot()
	}
	return &Association{snapshot: s, latest: map[string]int{}}
}

func (a *Association) Snapshot() AssociationSnapshot { return a.snapshot }

// Get returns the current row for key.
func (a *Association) Get(key RowKey) (*Tuple, bool) {
	if i, ok := a.latest[key.ID()]; ok {
		op := a.ops[i]
		if op.Type == RemoveRowOperation {
			return nil, false
		}
		return op.Value, true
	}
	if a.cleared {
		return nil, false
	}
	return a.snapshot.Get(key)
}

// Put sets the row for key. A nil row removes it.
func (a *Association) Put(key RowKey, row *Tuple) {
	if row == nil {
		a.Remove(key)
		return
	}
	a.latest[key.ID()] = len(a.ops)
	a.ops = append(a.ops, AssociationOperation{Type: PutRowOperation, Key: key, Value: row})
}

// Remove removes the row for key.
func (a *Association) Remove(key RowKey) {
	a.latest[key.ID()] = len(a.ops)
	a.ops = append(a.ops, AssociationOperation{Type: RemoveRowOperation, Key: key})
}

// Clear removes every row.
func (a *Association) Clear() {
	a.ops = append(a.ops, AssociationOperation{Type: ClearOperation})
	a.latest = map[string]int{}
	a.cleared = true
	a.clearAt = len(a.ops)
}

// RowKeys returns the keys currently present: surviving snapshot rows in
// load order, then new rows in insertion order.
func (a *Association) RowKeys() []RowKey {
	var keys []RowKey
	seen := make(map[string]struct{})
	if !a.cleared {
		for _, k := range a.snapshot.RowKeys() {
			seen[k.ID()] = struct{}{}
			if _, ok := a.Get(k); ok {
				keys = append(keys, k)
			}
		}
	}
	for _, op := range a.ops[a.clearAt:] {
		if op.Type != PutRowOperation {
			continue
		}
		if _, ok := seen[op.Key.ID()]; ok {
			continue
		}
		seen[op.Key.ID()] = struct{}{}
		if _, ok := a.Get(op.Key); ok {
			keys = append(keys, op.Key)
		}
	}
	return keys
}

// Rows returns the current rows in RowKeys order.
func (a *Association) Rows() []AssociationRow {
	keys := a.RowKeys()
	rows := make([]AssociationRow, 0, len(keys))
	for _, k := range keys {
		t, _ := a.Get(k)
		rows = append(rows, AssociationRow{Key: k, Tuple: t})
	}
	return rows
}

// Size returns the number of rows currently present.
func (a *Association) Size() int { return len(a.RowKeys()) }

// IsEmpty reports whether no row is present.
func (a *Association) IsEmpty() bool { return a.Size() == 0 }

// Operations returns the change log in the order it was applied.
func (a *Association) Operations() []AssociationOperation { return slices.Clone(a.ops) }

// HasChanges reports whether the change log is non-empty.
func (a *Association) HasChanges() bool { return len(a.ops) > 0 }
