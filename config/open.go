package config

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jacentio/lattice/badgergrid"
	"github.com/jacentio/lattice/dynamo"
	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/logging"
	"github.com/jacentio/lattice/metrics"
	"github.com/jacentio/lattice/redisgrid"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the configured dialect and wraps it in the configured chain:
// logging outermost, then metrics, then the recorder. The returned closer
// releases the backend connection.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger, reg prometheus.Registerer) (grid.Dialect, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, closer, err := openBase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("dialect opened",
		zap.String("dialect", cfg.Dialect),
		zap.Stringer("capabilities", base.Capabilities()),
	)

	var stages []grid.Middleware
	if cfg.Logging.Enabled {
		stages = append(stages, logging.New(logger))
	}
	if cfg.Metrics.Enabled {
		stages = append(stages, metrics.New(reg).Middleware())
	}
	if cfg.Recorder {
		stages = append(stages, grid.NewRecorder())
	}
	return grid.Chain(base, stages...), closer, nil
}

func openBase(ctx context.Context, cfg *Config) (grid.Dialect, io.Closer, error) {
	switch cfg.Dialect {
	case DialectDynamoDB:
		client, err := newDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.New(client, cfg.DynamoDB.dialectConfig()), nopCloser{}, nil
	case DialectRedis:
		d, err := redisgrid.Connect(ctx, &redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		}, cfg.Redis.dialectConfig())
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case DialectBadger:
		d, err := badgergrid.Open(cfg.Badger.dialectConfig())
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	}
	return nil, nil, fmt.Errorf("unknown dialect %q", cfg.Dialect)
}

func newDynamoDBClient(ctx context.Context, c DynamoDBConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}

func (c DynamoDBConfig) dialectConfig() dynamo.Config {
	return dynamo.Config{
		AssociationStorage: dynamo.AssociationStorage(c.AssociationStorage),
		AssociationTable:   c.AssociationTable,
		SequenceTable:      c.SequenceTable,
		NumShards:          c.NumShards,
		SoftDelete:         c.SoftDelete,
		MaxTransactItems:   c.MaxTransactItems,
	}
}

func (c RedisConfig) dialectConfig() redisgrid.Config {
	return redisgrid.Config{
		Prefix:             c.Prefix,
		AssociationStorage: redisgrid.AssociationStorage(c.AssociationStorage),
		MaxRetries:         c.MaxRetries,
	}
}

func (c BadgerConfig) dialectConfig() badgergrid.Config {
	return badgergrid.Config{
		Dir:                c.Dir,
		InMemory:           c.InMemory,
		AssociationStorage: badgergrid.AssociationStorage(c.AssociationStorage),
		MaxRetries:         c.MaxRetries,
	}
}
