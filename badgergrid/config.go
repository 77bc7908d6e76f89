package badgergrid

// AssociationStorage selects where association rows are stored.
type AssociationStorage string

const (
	// InEntity stores rows inside the owner's record.
	InEntity AssociationStorage = "in_entity"

	// AssociationKeys stores every row under its own key.
	AssociationKeys AssociationStorage = "association_keys"
)

// Config holds configuration for the Dialect.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory.
	InMemory bool

	// AssociationStorage selects where associations between entities live.
	// Embedded collections are always stored in the entity.
	// Default: InEntity
	AssociationStorage AssociationStorage

	// MaxRetries bounds how often a transaction is retried after
	// badger.ErrConflict.
	// Default: 10
	MaxRetries int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AssociationStorage: InEntity,
		MaxRetries:         10,
	}
}

// validate fills defaults for unset fields.
func (c *Config) validate() {
	if c.AssociationStorage != AssociationKeys {
		c.AssociationStorage = InEntity
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 10
	}
}
