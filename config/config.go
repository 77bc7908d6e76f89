// Package config loads the YAML configuration of a lattice deployment and
// builds the configured dialect with its middleware chain.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Dialect names.
const (
	DialectDynamoDB = "dynamodb"
	DialectRedis    = "redis"
	DialectBadger   = "badger"
)

// Config represents the complete configuration.
type Config struct {
	Dialect  string         `yaml:"dialect"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Redis    RedisConfig    `yaml:"redis"`
	Badger   BadgerConfig   `yaml:"badger"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Recorder adds the operation-recording stage so units of work can
	// report applied operations on rollback.
	Recorder bool `yaml:"recorder"`
}

// DynamoDBConfig holds DynamoDB dialect configuration
type DynamoDBConfig struct {
	Region             string `yaml:"region"`
	Profile            string `yaml:"profile"`
	Endpoint           string `yaml:"endpoint"`
	AssociationStorage string `yaml:"association_storage"`
	AssociationTable   string `yaml:"association_table"`
	SequenceTable      string `yaml:"sequence_table"`
	NumShards          int    `yaml:"num_shards"`
	SoftDelete         bool   `yaml:"soft_delete"`
	MaxTransactItems   int    `yaml:"max_transact_items"`
}

// RedisConfig holds Redis dialect configuration
type RedisConfig struct {
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	Prefix             string        `yaml:"prefix"`
	AssociationStorage string        `yaml:"association_storage"`
	MaxRetries         int           `yaml:"max_retries"`
}

// BadgerConfig holds Badger dialect configuration
type BadgerConfig struct {
	Dir                string `yaml:"dir"`
	InMemory           bool   `yaml:"in_memory"`
	AssociationStorage string `yaml:"association_storage"`
	MaxRetries         int    `yaml:"max_retries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, defaults and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectBadger
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
		cfg.Badger.Dir = "data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	switch c.Dialect {
	case DialectDynamoDB:
		errs = append(errs, storage("dynamodb", c.DynamoDB.AssociationStorage, "in_entity", "association_table"))
		if c.DynamoDB.NumShards < 0 || c.DynamoDB.NumShards > 256 {
			errs = append(errs, fmt.Errorf("dynamodb.num_shards must be between 0 and 256, got %d", c.DynamoDB.NumShards))
		}
		if c.DynamoDB.MaxTransactItems < 0 || c.DynamoDB.MaxTransactItems > 100 {
			errs = append(errs, fmt.Errorf("dynamodb.max_transact_items must be between 0 and 100, got %d", c.DynamoDB.MaxTransactItems))
		}
	case DialectRedis:
		errs = append(errs, storage("redis", c.Redis.AssociationStorage, "in_entity", "association_hash"))
		if c.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("redis.db must be non-negative, got %d", c.Redis.DB))
		}
	case DialectBadger:
		errs = append(errs, storage("badger", c.Badger.AssociationStorage, "in_entity", "association_keys"))
	default:
		errs = append(errs, fmt.Errorf("unknown dialect %q", c.Dialect))
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func storage(section, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s.association_storage must be one of %v, got %q", section, allowed, value)
}

// NewLogger builds the zap logger described by c.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Encoding = c.Format
	if c.Format == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}
