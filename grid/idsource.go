package grid

import "fmt"

// IdSourceKind tells table-backed id sources from sequences.
type IdSourceKind int

const (
	IdSourceTable IdSourceKind = iota
	IdSourceSequence
)

func (k IdSourceKind) String() string {
	if k == IdSourceSequence {
		return "SEQUENCE"
	}
	return "TABLE"
}

// IdSourceKey identifies a counter or sequence. Build one with ForTable or
// ForSequence; the kind decides which fields are meaningful.
type IdSourceKey struct {
	kind        IdSourceKind
	name        string
	keyColumn   string
	valueColumn string
	segment     string
}

// ForTable addresses the row whose keyColumn equals segment in table; the
// counter lives in valueColumn.
func ForTable(table, keyColumn, valueColumn, segment string) IdSourceKey {
	return IdSourceKey{
		kind:        IdSourceTable,
		name:        table,
		keyColumn:   keyColumn,
		valueColumn: valueColumn,
		segment:     segment,
	}
}

// ForSequence addresses a named sequence.
func ForSequence(name string) IdSourceKey {
	return IdSourceKey{kind: IdSourceSequence, name: name}
}

func (k IdSourceKey) Kind() IdSourceKind { return k.kind }

// Name returns the table name for table sources and the sequence name otherwise.
func (k IdSourceKey) Name() string { return k.name }

// Segment returns the key column value selecting the counter row.
func (k IdSourceKey) Segment() string { return k.segment }

// KeyColumnName returns the key column of a table source.
func (k IdSourceKey) KeyColumnName() (string, bool) {
	if k.kind != IdSourceTable {
		return "", false
	}
	return k.keyColumn, true
}

// ValueColumnName returns the value column of a table source.
func (k IdSourceKey) ValueColumnName() (string, bool) {
	if k.kind != IdSourceTable {
		return "", false
	}
	return k.valueColumn, true
}

// Equal compares kind and name (and segment for tables). Column names do
// not take part.
func (k IdSourceKey) Equal(o IdSourceKey) bool {
	return k.kind == o.kind && k.name == o.name && k.segment == o.segment
}

func (k IdSourceKey) String() string {
	if k.kind == IdSourceSequence {
		return fmt.Sprintf("SEQUENCE(%s)", k.name)
	}
	return fmt.Sprintf("TABLE(%s#%s)", k.name, k.segment)
}

// NextValueRequest asks a dialect to advance an id source.
type NextValueRequest struct {
	Key IdSourceKey

	// Increment is added on each call; values below 1 are treated as 1.
	Increment int

	// InitialValue is returned by the first call for a fresh source.
	InitialValue int64
}

// Step returns the effective increment.
func (r NextValueRequest) Step() int64 {
	if r.Increment < 1 {
		return 1
	}
	return int64(r.Increment)
}
