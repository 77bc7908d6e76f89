package grid

import (
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"strconv"
	"strings"
)

// EntityKeyMetadata describes the shape of an entity key: the table and
// its ordered key columns.
type EntityKeyMetadata struct {
	table       string
	columnNames []string
}

// NewEntityKeyMetadata creates metadata for a table keyed by the given columns.
func NewEntityKeyMetadata(table string, columnNames ...string) (*EntityKeyMetadata, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: empty table name", ErrInvalidKey)
	}
	if len(columnNames) == 0 {
		return nil, fmt.Errorf("%w: table %q has no key columns", ErrInvalidKey, table)
	}
	for _, c := range columnNames {
		if c == "" {
			return nil, fmt.Errorf("%w: table %q has an empty key column name", ErrInvalidKey, table)
		}
	}
	return &EntityKeyMetadata{table: table, columnNames: slices.Clone(columnNames)}, nil
}

// MustEntityKeyMetadata is like NewEntityKeyMetadata but panics on error.
func MustEntityKeyMetadata(table string, columnNames ...string) *EntityKeyMetadata {
	m, err := NewEntityKeyMetadata(table, columnNames...)
	if err != nil {
		panic(err)
	}
	return m
}

// Table returns the table name.
func (m *EntityKeyMetadata) Table() string { return m.table }

// ColumnNames returns the key column names in order.
func (m *EntityKeyMetadata) ColumnNames() []string { return slices.Clone(m.columnNames) }

// IsKeyColumn reports whether name is one of the key columns.
func (m *EntityKeyMetadata) IsKeyColumn(name string) bool {
	return slices.Contains(m.columnNames, name)
}

// Equal reports whether both describe the same table and key columns.
func (m *EntityKeyMetadata) Equal(o *EntityKeyMetadata) bool {
	if m == o {
		return true
	}
	if m == nil || o == nil {
		return false
	}
	return m.table == o.table && slices.Equal(m.columnNames, o.columnNames)
}

func (m *EntityKeyMetadata) String() string {
	return m.table + "(" + strings.Join(m.columnNames, ",") + ")"
}

// EntityKey identifies one record of one table. It is immutable.
type EntityKey struct {
	meta   *EntityKeyMetadata
	values []any
	id     string
	hash   uint64
}

// NewEntityKey creates a key for meta with the given column values.
func NewEntityKey(meta *EntityKeyMetadata, values ...any) (EntityKey, error) {
	if meta == nil {
		return EntityKey{}, fmt.Errorf("%w: nil entity key metadata", ErrInvalidKey)
	}
	if len(values) != len(meta.columnNames) {
		return EntityKey{}, fmt.Errorf("%w: table %q expects %d key values, got %d",
			ErrInvalidKey, meta.table, len(meta.columnNames), len(values))
	}
	k := EntityKey{meta: meta, values: slices.Clone(values)}
	k.id = canonicalID(meta.table, meta.columnNames, k.values)
	k.hash = hashID(k.id)
	return k, nil
}

// MustEntityKey is like NewEntityKey but panics on error.
func MustEntityKey(meta *EntityKeyMetadata, values ...any) EntityKey {
	k, err := NewEntityKey(meta, values...)
	if err != nil {
		panic(err)
	}
	return k
}

// Metadata returns the key metadata.
func (k EntityKey) Metadata() *EntityKeyMetadata { return k.meta }

// Table returns the table name.
func (k EntityKey) Table() string {
	if k.meta == nil {
		return ""
	}
	return k.meta.table
}

// ColumnNames returns the key column names.
func (k EntityKey) ColumnNames() []string {
	if k.meta == nil {
		return nil
	}
	return k.meta.ColumnNames()
}

// ColumnValues returns the key column values.
func (k EntityKey) ColumnValues() []any { return slices.Clone(k.values) }

// ColumnValue returns the value of the named key column.
func (k EntityKey) ColumnValue(name string) (any, bool) {
	if k.meta == nil {
		return nil, false
	}
	i := slices.Index(k.meta.columnNames, name)
	if i < 0 {
		return nil, false
	}
	return k.values[i], true
}

// IsZero reports whether k was never constructed.
func (k EntityKey) IsZero() bool { return k.meta == nil }

// ID returns the canonical identity string, suitable as a map key.
func (k EntityKey) ID() string { return k.id }

// Hash returns the hash computed at construction.
func (k EntityKey) Hash() uint64 { return k.hash }

// Equal reports whether both keys have the same metadata identity and values.
func (k EntityKey) Equal(o EntityKey) bool {
	return k.hash == o.hash && k.id == o.id
}

func (k EntityKey) String() string { return k.id }

// AssociationKind distinguishes associations between entities from
// collections of embeddables.
type AssociationKind int

const (
	AssociationKindAssociation AssociationKind = iota
	AssociationKindEmbeddedCollection
)

func (k AssociationKind) String() string {
	if k == AssociationKindEmbeddedCollection {
		return "embedded_collection"
	}
	return "association"
}

// AssociationKeyMetadataSpec holds the arguments for NewAssociationKeyMetadata.
type AssociationKeyMetadataSpec struct {
	// Table is the association table name.
	Table string

	// ColumnNames identify the owning side.
	ColumnNames []string

	// RowKeyColumnNames identify one row within the association.
	RowKeyColumnNames []string

	// RowKeyIndexColumnNames is the subset of row key columns that also
	// index the row (list position, map key).
	RowKeyIndexColumnNames []string

	// CollectionRole is the property name of the collection on the owner.
	CollectionRole string

	Kind AssociationKind

	// AssociatedEntity is the key shape of the target entity, nil for
	// embedded collections.
	AssociatedEntity *EntityKeyMetadata
}

// AssociationKeyMetadata describes where and how an association is stored.
type AssociationKeyMetadata struct {
	table                  string
	columnNames            []string
	rowKeyColumnNames      []string
	rowKeyIndexColumnNames []string
	collectionRole         string
	kind                   AssociationKind
	associatedEntity       *EntityKeyMetadata
}

// NewAssociationKeyMetadata validates def and creates the metadata.
func NewAssociationKeyMetadata(def AssociationKeyMetadataSpec) (*AssociationKeyMetadata, error) {
	if def.Table == "" {
		return nil, fmt.Errorf("%w: empty association table name", ErrInvalidKey)
	}
	if len(def.ColumnNames) == 0 {
		return nil, fmt.Errorf("%w: association %q has no owning columns", ErrInvalidKey, def.Table)
	}
	if len(def.RowKeyColumnNames) == 0 {
		return nil, fmt.Errorf("%w: association %q has no row key columns", ErrInvalidKey, def.Table)
	}
	for _, c := range def.RowKeyIndexColumnNames {
		if !slices.Contains(def.RowKeyColumnNames, c) {
			return nil, fmt.Errorf("%w: index column %q of association %q is not a row key column",
				ErrInvalidKey, c, def.Table)
		}
	}
	role := def.CollectionRole
	if role == "" {
		role = def.Table
	}
	return &AssociationKeyMetadata{
		table:                  def.Table,
		columnNames:            slices.Clone(def.ColumnNames),
		rowKeyColumnNames:      slices.Clone(def.RowKeyColumnNames),
		rowKeyIndexColumnNames: slices.Clone(def.RowKeyIndexColumnNames),
		collectionRole:         role,
		kind:                   def.Kind,
		associatedEntity:       def.AssociatedEntity,
	}, nil
}

func (m *AssociationKeyMetadata) Table() string               { return m.table }
func (m *AssociationKeyMetadata) ColumnNames() []string       { return slices.Clone(m.columnNames) }
func (m *AssociationKeyMetadata) RowKeyColumnNames() []string { return slices.Clone(m.rowKeyColumnNames) }
func (m *AssociationKeyMetadata) RowKeyIndexColumnNames() []string {
	return slices.Clone(m.rowKeyIndexColumnNames)
}
func (m *AssociationKeyMetadata) CollectionRole() string               { return m.collectionRole }
func (m *AssociationKeyMetadata) Kind() AssociationKind                { return m.kind }
func (m *AssociationKeyMetadata) AssociatedEntity() *EntityKeyMetadata { return m.associatedEntity }

// IsKeyColumn reports whether name is an owning-side column.
func (m *AssociationKeyMetadata) IsKeyColumn(name string) bool {
	return slices.Contains(m.columnNames, name)
}

// RowKeyBuilder returns a builder preconfigured with this association's row key columns.
func (m *AssociationKeyMetadata) RowKeyBuilder() *RowKeyBuilder {
	return NewRowKeyBuilder(m.table).
		AddColumns(m.rowKeyColumnNames...).
		AddIndexColumns(m.rowKeyIndexColumnNames...)
}

// AssociationKey identifies a whole association owned by one entity.
type AssociationKey struct {
	meta   *AssociationKeyMetadata
	owner  EntityKey
	values []any
	id     string
	hash   uint64
}

// NewAssociationKey creates the key of the association described by meta
// and owned by owner. values are the owning-side column values.
func NewAssociationKey(meta *AssociationKeyMetadata, owner EntityKey, values ...any) (AssociationKey, error) {
	if meta == nil {
		return AssociationKey{}, fmt.Errorf("%w: nil association key metadata", ErrInvalidKey)
	}
	if len(values) != len(meta.columnNames) {
		return AssociationKey{}, fmt.Errorf("%w: association %q expects %d key values, got %d",
			ErrInvalidKey, meta.table, len(meta.columnNames), len(values))
	}
	k := AssociationKey{meta: meta, owner: owner, values: slices.Clone(values)}
	k.id = canonicalID(meta.table, meta.columnNames, k.values)
	k.hash = hashID(k.id)
	return k, nil
}

// MustAssociationKey is like NewAssociationKey but panics on error.
func MustAssociationKey(meta *AssociationKeyMetadata, owner EntityKey, values ...any) AssociationKey {
	k, err := NewAssociationKey(meta, owner, values...)
	if err != nil {
		panic(err)
	}
	return k
}

func (k AssociationKey) Metadata() *AssociationKeyMetadata { return k.meta }
func (k AssociationKey) Owner() EntityKey                  { return k.owner }
func (k AssociationKey) ColumnValues() []any               { return slices.Clone(k.values) }
func (k AssociationKey) ID() string                        { return k.id }
func (k AssociationKey) Hash() uint64                      { return k.hash }
func (k AssociationKey) String() string                    { return k.id }

// Table returns the association table name.
func (k AssociationKey) Table() string {
	if k.meta == nil {
		return ""
	}
	return k.meta.table
}

// ColumnNames returns the owning-side column names.
func (k AssociationKey) ColumnNames() []string {
	if k.meta == nil {
		return nil
	}
	return k.meta.ColumnNames()
}

// Equal reports whether both keys address the same association.
func (k AssociationKey) Equal(o AssociationKey) bool {
	return k.hash == o.hash && k.id == o.id
}

// canonicalID renders a stable identity for table, columns and values.
// Numeric values are rendered by value, not by Go type, so keys survive
// backends that decode numbers as float64 or uint64.
func canonicalID(table string, columns []string, values []any) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(table))
	b.WriteByte('{')
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(c))
		b.WriteByte('=')
		b.WriteString(canonicalValue(values[i]))
	}
	b.WriteByte('}')
	return b.String()
}

func canonicalValue(v any) string {
	switch n := v.(type) {
	case string:
		return "s:" + strconv.Quote(n)
	case []byte:
		return fmt.Sprintf("b:%x", n)
	case int:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case int8:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case int16:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case int64:
		return "n:" + strconv.FormatInt(n, 10)
	case uint:
		return "n:" + strconv.FormatUint(uint64(n), 10)
	case uint8:
		return "n:" + strconv.FormatUint(uint64(n), 10)
	case uint16:
		return "n:" + strconv.FormatUint(uint64(n), 10)
	case uint32:
		return "n:" + strconv.FormatUint(uint64(n), 10)
	case uint64:
		return "n:" + strconv.FormatUint(n, 10)
	case float32:
		return canonicalFloat(float64(n))
	case float64:
		return canonicalFloat(n)
	}
	return fmt.Sprintf("%T:%#v", v, v)
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
