package redisgrid

// AssociationStorage selects where association rows are stored.
type AssociationStorage string

const (
	// InEntity stores rows as one field of the owner's hash.
	InEntity AssociationStorage = "in_entity"

	// AssociationHash stores each association in its own hash, one field per row.
	AssociationHash AssociationStorage = "association_hash"
)

// Config holds configuration for the Dialect.
type Config struct {
	// Prefix namespaces every key the dialect writes.
	// Default: "lattice"
	Prefix string

	// AssociationStorage selects where associations between entities live.
	// Embedded collections are always stored in the entity.
	// Default: InEntity
	AssociationStorage AssociationStorage

	// MaxRetries bounds how often a WATCH transaction is retried after a
	// concurrent write touched a watched key.
	// Default: 10
	MaxRetries int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:             "lattice",
		AssociationStorage: InEntity,
		MaxRetries:         10,
	}
}

// validate fills defaults for unset fields.
func (c *Config) validate() {
	if c.Prefix == "" {
		c.Prefix = "lattice"
	}
	if c.AssociationStorage != AssociationHash {
		c.AssociationStorage = InEntity
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 10
	}
}
