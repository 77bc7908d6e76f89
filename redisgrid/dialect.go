package redisgrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/internal/codec"
	"github.com/jacentio/lattice/internal/shard"
)

// Dialect stores every tuple as a Redis hash, one field per column.
// Field values are CBOR encoded so column types survive a round trip.
type Dialect struct {
	client redis.UniversalClient
	config Config
}

// New creates a new Dialect instance.
func New(client redis.UniversalClient, config Config) *Dialect {
	config.validate()
	return &Dialect{
		client: client,
		config: config,
	}
}

// Connect opens a client for opts, verifies the connection and returns a
// dialect on top of it.
func Connect(ctx context.Context, opts *redis.Options, config Config) (*Dialect, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, grid.Unavailable("ping", err)
	}
	return New(client, config), nil
}

// Config returns the effective configuration.
func (d *Dialect) Config() Config { return d.config }

// Close closes the underlying client.
func (d *Dialect) Close() error { return d.client.Close() }

// Capabilities reports batching and optimistic locking.
func (d *Dialect) Capabilities() grid.Capabilities {
	return grid.NewCapabilities(grid.CapBatch, grid.CapOptimisticLock)
}

func (d *Dialect) tupleKey(key grid.EntityKey) string {
	return d.tablePrefix(key.Table()) + shard.Digest(key.ID())
}

func (d *Dialect) tablePrefix(table string) string {
	return fmt.Sprintf("%s:t:%s:", d.config.Prefix, table)
}

// GetTuple reads the hash of key.
func (d *Dialect) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	fields, err := d.client.HGetAll(ctx, d.tupleKey(key)).Result()
	if err != nil {
		return nil, mapError("hgetall", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	m, err := decodeTuple(fields)
	if err != nil || len(m) == 0 {
		return nil, err
	}
	return grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate), nil
}

// CreateTuple returns an empty insert tuple. Nothing is written.
func (d *Dialect) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	return grid.NewTuple(), nil
}

// InsertOrUpdateTuple writes an insert tuple only if the hash does not
// exist yet, and any other tuple as HSET/HDEL of its net changes.
func (d *Dialect) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	cmds, err := d.tupleCommands(key, tuple)
	if err != nil {
		return err
	}
	if tuple.SnapshotType() != grid.SnapshotInsert {
		return d.exec(ctx, cmds)
	}

	k := d.tupleKey(key)
	return d.watch(ctx, func(tx *redis.Tx) error {
		exists, err := hasColumns(ctx, tx, k)
		if err != nil {
			return err
		}
		if exists {
			return &grid.TupleAlreadyExistsError{Key: key}
		}
		return d.execTx(ctx, tx, cmds)
	}, k)
}

// RemoveTuple deletes the hash together with its in-entity associations.
func (d *Dialect) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	return mapError("del", d.client.Del(ctx, d.tupleKey(key)).Err())
}

// ForEachTuple scans the hashes of every table and feeds them to consumer.
func (d *Dialect) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	for _, meta := range metas {
		iter := d.client.Scan(ctx, 0, escapePattern(d.tablePrefix(meta.Table()))+"*", 100).Iterator()
		for iter.Next(ctx) {
			fields, err := d.client.HGetAll(ctx, iter.Val()).Result()
			if err != nil {
				return mapError("hgetall", err)
			}
			m, err := decodeTuple(fields)
			if err != nil {
				return err
			}
			// Removed since the scan returned it, or holds collections only
			if len(m) == 0 {
				continue
			}
			if err := consumer(meta, grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate)); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return mapError("scan", err)
		}
	}
	return nil
}

type hashReader interface {
	HKeys(ctx context.Context, key string) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// hasColumns reports whether the hash at k holds any column. A hash with
// only collection fields does not count as a stored tuple.
func hasColumns(ctx context.Context, c hashReader, k string) (bool, error) {
	fields, err := c.HKeys(ctx, k).Result()
	if err != nil {
		return false, mapError("hkeys", err)
	}
	for _, f := range fields {
		if !isCollectionField(f) {
			return true, nil
		}
	}
	return false, nil
}

// command queues one write on a transaction pipeline.
type command func(ctx context.Context, pipe redis.Pipeliner)

// tupleCommands turns the net changes of tuple into HSET and HDEL. Key
// columns are always written so a hash is never empty after an insert.
func (d *Dialect) tupleCommands(key grid.EntityKey, tuple *grid.Tuple) ([]command, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	k := d.tupleKey(key)
	puts, removes := netChanges(tuple)

	var values []any
	names := key.ColumnNames()
	keyValues := key.ColumnValues()
	for i, c := range names {
		b, err := codec.EncodeValue(keyValues[i])
		if err != nil {
			return nil, err
		}
		values = append(values, c, b)
	}
	for _, c := range sortedKeys(puts) {
		if key.Metadata().IsKeyColumn(c) {
			continue
		}
		b, err := codec.EncodeValue(puts[c])
		if err != nil {
			return nil, fmt.Errorf("encode column %q of %s: %w", c, key, err)
		}
		values = append(values, c, b)
	}
	var fields []string
	for _, c := range removes {
		if !key.Metadata().IsKeyColumn(c) {
			fields = append(fields, c)
		}
	}

	cmds := []command{func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, k, values...)
	}}
	if len(fields) > 0 {
		cmds = append(cmds, func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HDel(ctx, k, fields...)
		})
	}
	return cmds, nil
}

// exec runs cmds in one MULTI/EXEC.
func (d *Dialect) exec(ctx context.Context, cmds []command) error {
	if len(cmds) == 0 {
		return nil
	}
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range cmds {
			c(ctx, pipe)
		}
		return nil
	})
	return mapError("exec", err)
}

func (d *Dialect) execTx(ctx context.Context, tx *redis.Tx, cmds []command) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range cmds {
			c(ctx, pipe)
		}
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return err
	}
	return mapError("exec", err)
}

// watch runs fn under WATCH of keys, retrying when a watched key changed
// before EXEC.
func (d *Dialect) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < d.config.MaxRetries; i++ {
		err = d.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return grid.Rejected("watch", err)
}

// netChanges collapses a change log into the final put or remove per column.
func netChanges(tuple *grid.Tuple) (map[string]any, []string) {
	puts := map[string]any{}
	removed := map[string]bool{}
	for _, op := range tuple.Operations() {
		switch op.Type {
		case grid.PutOperation:
			puts[op.Column] = op.Value
			delete(removed, op.Column)
		case grid.RemoveOperation:
			removed[op.Column] = true
			delete(puts, op.Column)
		}
	}
	return puts, sortedKeys(removed)
}

func decodeTuple(fields map[string]string) (map[string]any, error) {
	m := make(map[string]any, len(fields))
	for name, raw := range fields {
		if isCollectionField(name) {
			continue
		}
		v, err := codec.DecodeValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		m[name] = v
	}
	return m, nil
}

// escapePattern quotes glob metacharacters for SCAN MATCH.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
