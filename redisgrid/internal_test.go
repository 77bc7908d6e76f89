package redisgrid

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
)

func TestEscapePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"lattice:t:users:", "lattice:t:users:"},
		{"p:t:a*b:", `p:t:a\*b:`},
		{"p:t:[x]?:", `p:t:\[x\]\?:`},
		{`p:t:a\b:`, `p:t:a\\b:`},
	}
	for _, tt := range tests {
		if got := escapePattern(tt.in); got != tt.want {
			t.Errorf("escapePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNetChanges(t *testing.T) {
	tuple := grid.NewTupleFromSnapshot(grid.MapSnapshot{"a": 1, "b": 2}, grid.SnapshotUpdate)
	tuple.Put("a", 10)
	tuple.Remove("b")
	tuple.Put("c", 3)
	tuple.Remove("c")

	puts, removes := netChanges(tuple)
	if len(puts) != 1 || puts["a"] != 10 {
		t.Errorf("unexpected puts %v", puts)
	}
	if len(removes) != 2 || removes[0] != "b" || removes[1] != "c" {
		t.Errorf("unexpected removes %v", removes)
	}
}

func TestMapError(t *testing.T) {
	if err := mapError("op", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := mapError("op", errors.New("dial tcp: connection refused")); !errors.Is(err, grid.ErrBackendUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
	if err := mapError("op", redis.TxFailedErr); !errors.Is(err, grid.ErrBackendRejected) {
		t.Errorf("expected rejected, got %v", err)
	}
}

func TestDecodeTuple_SkipsCollections(t *testing.T) {
	m, err := decodeTuple(map[string]string{
		"_assoc.roles": "\x80",
		"name":         "\x65alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 1 || m["name"] != "alice" {
		t.Errorf("unexpected tuple %v", m)
	}
}

func TestSequenceKey(t *testing.T) {
	d := New(nil, Config{Prefix: "p"})
	if got := d.sequenceKey(grid.ForSequence("orders")); got != "p:seq:orders" {
		t.Errorf("unexpected sequence key %q", got)
	}
	if got := d.sequenceKey(grid.ForTable("ids", "k", "v", "orders")); got != "p:tbl:ids:orders" {
		t.Errorf("unexpected table key %q", got)
	}
}
