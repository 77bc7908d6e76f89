package grid_test

import (
	"reflect"
	"testing"

	"github.com/jacentio/lattice/grid"
)

func TestTuple_ChangeLog(t *testing.T) {
	tuple := grid.NewTupleFromSnapshot(grid.MapSnapshot{"a": 1, "b": 2}, grid.SnapshotUpdate)
	tuple.Remove("a")

	if got := tuple.ColumnNames(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("expected [b], got %v", got)
	}
	if _, ok := tuple.Get("a"); ok {
		t.Error("expected a to be removed")
	}
	if v, _ := tuple.Get("b"); v != 2 {
		t.Errorf("expected b=2, got %v", v)
	}
	if !reflect.DeepEqual(tuple.Map(), map[string]any{"b": 2}) {
		t.Errorf("unexpected map %v", tuple.Map())
	}

	// The snapshot is untouched
	if _, ok := tuple.Snapshot().Get("a"); !ok {
		t.Error("snapshot must keep a")
	}
}

func TestTuple_PutNilRemoves(t *testing.T) {
	tuple := grid.NewTuple()
	tuple.Put("a", 1)
	tuple.Put("a", nil)

	if _, ok := tuple.Get("a"); ok {
		t.Error("expected a to be removed")
	}
	ops := tuple.Operations()
	if len(ops) != 2 || ops[1].Type != grid.RemoveOperation {
		t.Errorf("unexpected change log %v", ops)
	}
}

func TestTuple_PutEmptyColumnPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	grid.NewTuple().Put("", 1)
}

func TestTuple_SnapshotType(t *testing.T) {
	tuple := grid.NewTuple()
	if tuple.SnapshotType() != grid.SnapshotInsert {
		t.Errorf("expected insert, got %s", tuple.SnapshotType())
	}
	if !tuple.Snapshot().IsEmpty() {
		t.Error("expected empty snapshot")
	}
	tuple.SetSnapshotType(grid.SnapshotUpdate)
	if tuple.SnapshotType().String() != "update" {
		t.Errorf("unexpected type %s", tuple.SnapshotType())
	}
}

func TestApplyOperations_ReplayIsIdempotent(t *testing.T) {
	tuple := grid.NewTupleFromSnapshot(grid.MapSnapshot{"a": 1, "b": 2}, grid.SnapshotUpdate)
	tuple.Put("c", 3)
	tuple.Remove("a")
	tuple.Put("b", 20)

	first := grid.ApplyOperations(map[string]any{"a": 1, "b": 2}, tuple.Operations())
	second := grid.ApplyOperations(map[string]any{"a": 1, "b": 2}, tuple.Operations())
	again := grid.ApplyOperations(first, tuple.Operations())

	want := map[string]any{"b": 20, "c": 3}
	for _, got := range []map[string]any{first, second, again} {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
	if !tuple.HasChanges() {
		t.Error("expected changes")
	}
}

func rowKey(t *testing.T, id string) grid.RowKey {
	t.Helper()
	k, err := grid.NewRowKey("user_roles", []string{"role_id"}, []any{id})
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func row(id string) *grid.Tuple {
	r := grid.NewTuple()
	r.Put("role_id", id)
	return r
}

func ids(keys []grid.RowKey) []string {
	var out []string
	for _, k := range keys {
		v, _ := k.ColumnValue("role_id")
		out = append(out, v.(string))
	}
	return out
}

func TestAssociation_Operations(t *testing.T) {
	snapshot := grid.NewMapAssociationSnapshot(
		grid.AssociationRow{Key: rowKey(t, "a"), Tuple: row("a")},
		grid.AssociationRow{Key: rowKey(t, "b"), Tuple: row("b")},
	)
	assoc := grid.NewAssociationFromSnapshot(snapshot)
	if assoc.Size() != 2 || assoc.HasChanges() {
		t.Fatalf("unexpected fresh association: size %d", assoc.Size())
	}

	assoc.Put(rowKey(t, "c"), row("c"))
	assoc.Remove(rowKey(t, "a"))
	if got := ids(assoc.RowKeys()); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("expected [b c], got %v", got)
	}
	if _, ok := assoc.Get(rowKey(t, "a")); ok {
		t.Error("expected a to be removed")
	}

	assoc.Put(rowKey(t, "b"), nil)
	if got := ids(assoc.RowKeys()); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("expected [c], got %v", got)
	}
	if len(assoc.Operations()) != 3 {
		t.Errorf("expected 3 operations, got %d", len(assoc.Operations()))
	}
}

func TestAssociation_Clear(t *testing.T) {
	assoc := grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(
		grid.AssociationRow{Key: rowKey(t, "a"), Tuple: row("a")},
	))
	assoc.Put(rowKey(t, "b"), row("b"))
	assoc.Clear()
	if !assoc.IsEmpty() {
		t.Errorf("expected empty association, got %v", ids(assoc.RowKeys()))
	}

	assoc.Put(rowKey(t, "c"), row("c"))
	if got := ids(assoc.RowKeys()); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("expected [c], got %v", got)
	}
	ops := assoc.Operations()
	if len(ops) != 3 || ops[1].Type != grid.ClearOperation {
		t.Errorf("expected clear in the change log, got %v", ops)
	}
}

func TestMapAssociationSnapshot_LaterRowWins(t *testing.T) {
	s := grid.NewMapAssociationSnapshot(
		grid.AssociationRow{Key: rowKey(t, "a"), Tuple: row("first")},
		grid.AssociationRow{Key: rowKey(t, "a"), Tuple: row("second")},
	)
	if s.Size() != 1 {
		t.Fatalf("expected 1 row, got %d", s.Size())
	}
	r, _ := s.Get(rowKey(t, "a"))
	if v, _ := r.Get("role_id"); v != "second" {
		t.Errorf("expected second row to win, got %v", v)
	}
}
