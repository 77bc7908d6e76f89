package grid

import (
	"fmt"
	"slices"
)

// RowKey identifies one row within an association. It is immutable.
type RowKey struct {
	table       string
	columnNames []string
	values      []any
	id          string
	hash        uint64
}

// NewRowKey creates a row key from parallel column name and value slices.
func NewRowKey(table string, columnNames []string, values []any) (RowKey, error) {
	if len(columnNames) == 0 {
		return RowKey{}, fmt.Errorf("%w: row key without columns", ErrInvalidKey)
	}
	if len(columnNames) != len(values) {
		return RowKey{}, fmt.Errorf("%w: row key has %d columns and %d values",
			ErrInvalidKey, len(columnNames), len(values))
	}
	k := RowKey{
		table:       table,
		columnNames: slices.Clone(columnNames),
		values:      slices.Clone(values),
	}
	k.id = canonicalID(table, k.columnNames, k.values)
	k.hash = hashID(k.id)
	return k, nil
}

func (k RowKey) Table() string         { return k.table }
func (k RowKey) ColumnNames() []string { return slices.Clone(k.columnNames) }
func (k RowKey) ColumnValues() []any   { return slices.Clone(k.values) }
func (k RowKey) ID() string            { return k.id }
func (k RowKey) Hash() uint64          { return k.hash }
func (k RowKey) String() string        { return k.id }

// ColumnValue returns the value of the named column.
func (k RowKey) ColumnValue(name string) (any, bool) {
	i := slices.Index(k.columnNames, name)
	if i < 0 {
		return nil, false
	}
	return k.values[i], true
}

// Equal reports whether both keys address the same row.
func (k RowKey) Equal(o RowKey) bool {
	return k.hash == o.hash && k.id == o.id
}

// RowKeyBuilder assembles a RowKey: ordinary columns first, then the subset
// that also indexes the row, then the values.
type RowKeyBuilder struct {
	table        string
	columns      []string
	indexColumns []string
	values       map[string]any
}

// NewRowKeyBuilder starts a row key for the given association table.
func NewRowKeyBuilder(table string) *RowKeyBuilder {
	return &RowKeyBuilder{table: table, values: map[string]any{}}
}

// AddColumns declares ordinary row key columns.
func (b *RowKeyBuilder) AddColumns(names ...string) *RowKeyBuilder {
	for _, n := range names {
		if !slices.Contains(b.columns, n) {
			b.columns = append(b.columns, n)
		}
	}
	return b
}

// AddIndexColumns declares the columns that index the row. Index columns
// not yet declared through AddColumns are appended to the row key.
func (b *RowKeyBuilder) AddIndexColumns(names ...string) *RowKeyBuilder {
	for _, n := range names {
		if !slices.Contains(b.indexColumns, n) {
			b.indexColumns = append(b.indexColumns, n)
		}
	}
	return b
}

// Values sets column values; columns not part of the row key are ignored at Build.
func (b *RowKeyBuilder) Values(values map[string]any) *RowKeyBuilder {
	for k, v := range values {
		b.values[k] = v
	}
	return b
}

// ValuesFromTuple copies the current content of t.
func (b *RowKeyBuilder) ValuesFromTuple(t *Tuple) *RowKeyBuilder {
	return b.Values(t.Map())
}

// ColumnNames returns the declared columns, ordinary columns first.
func (b *RowKeyBuilder) ColumnNames() []string {
	names := slices.Clone(b.columns)
	for _, n := range b.indexColumns {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}

// IndexColumnNames returns the declared index columns.
func (b *RowKeyBuilder) IndexColumnNames() []string { return slices.Clone(b.indexColumns) }

// Build creates the RowKey. Every declared column needs a value.
func (b *RowKeyBuilder) Build() (RowKey, error) {
	names := b.ColumnNames()
	values := make([]any, len(names))
	for i, n := range names {
		v, ok := b.values[n]
		if !ok {
			return RowKey{}, fmt.Errorf("%w: no value for row key column %q", ErrInvalidKey, n)
		}
		values[i] = v
	}
	return NewRowKey(b.table, names, values)
}
