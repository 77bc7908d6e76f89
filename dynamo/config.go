package dynamo

// AssociationStorage selects where association rows are stored.
type AssociationStorage string

const (
	// InEntity stores rows as a list attribute on the owning item.
	InEntity AssociationStorage = "in_entity"

	// AssociationTable stores one item per row in a dedicated table.
	AssociationTable AssociationStorage = "association_table"
)

// Config holds configuration for the Dialect.
type Config struct {
	// AssociationStorage selects where associations between entities live.
	// Embedded collections are always stored in the entity.
	// Default: InEntity
	AssociationStorage AssociationStorage

	// AssociationTable is the name of the association row table, used when
	// AssociationStorage is AssociationTable. Its key is pk (S) + sk (S).
	// Default: "lattice_associations"
	AssociationTable string

	// SequenceTable holds named sequences. Its key is sequence_name (S).
	// Default: "lattice_sequences"
	SequenceTable string

	// NumShards is the number of partitions rows of one association are
	// spread across in the association table. Reads fan out over all of them.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// SoftDelete marks removed tuples with a ttl attribute instead of
	// deleting them, leaving the purge to DynamoDB's TTL sweeper. Reads
	// ignore expired items.
	SoftDelete bool

	// MaxTransactItems caps the size of one TransactWriteItems round.
	// Default: 100 (the DynamoDB limit)
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		AssociationStorage: InEntity,
		AssociationTable:   "lattice_associations",
		SequenceTable:      "lattice_sequences",
		NumShards:          1,
		MaxTransactItems:   maxTransactItems,
	}
}

const maxTransactItems = 100

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.AssociationStorage != AssociationTable {
		c.AssociationStorage = InEntity
	}
	if c.AssociationTable == "" {
		c.AssociationTable = "lattice_associations"
	}
	if c.SequenceTable == "" {
		c.SequenceTable = "lattice_sequences"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > maxTransactItems {
		c.MaxTransactItems = maxTransactItems
	}
}
