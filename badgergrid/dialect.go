package badgergrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/internal/codec"
	"github.com/jacentio/lattice/internal/shard"
)

const sep = "\x00"

// Dialect stores grid tuples in an embedded Badger database. Every
// dialect call runs in its own badger transaction.
type Dialect struct {
	db     *badger.DB
	config Config
	owned  bool
}

// Open opens the database described by config. The dialect closes it on
// Close.
func Open(config Config) (*Dialect, error) {
	opts := badger.DefaultOptions(config.Dir).WithLogger(nil)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, grid.Unavailable("open", err)
	}
	d := New(db, config)
	d.owned = true
	return d, nil
}

// New creates a dialect on an open database owned by the caller.
func New(db *badger.DB, config Config) *Dialect {
	config.validate()
	return &Dialect{
		db:     db,
		config: config,
	}
}

// Config returns the effective configuration.
func (d *Dialect) Config() Config { return d.config }

// Close closes the database if Open created it.
func (d *Dialect) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}

// Capabilities reports batching, optimistic locking and identity columns.
func (d *Dialect) Capabilities() grid.Capabilities {
	return grid.NewCapabilities(grid.CapBatch, grid.CapOptimisticLock, grid.CapIdentityColumns)
}

// record is the stored form of one tuple. In-entity associations travel
// with it, keyed by collection role.
type record struct {
	Columns     map[string]any              `cbor:"c"`
	Collections map[string][]map[string]any `cbor:"a,omitempty"`
}

func (r *record) hasColumns() bool { return r != nil && len(r.Columns) > 0 }

func tuplePrefix(table string) []byte {
	return []byte("t" + sep + table + sep)
}

func tupleKey(key grid.EntityKey) []byte {
	return append(tuplePrefix(key.Table()), shard.Digest(key.ID())...)
}

func readRecord(txn *badger.Txn, k []byte) (*record, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var r record
	if err := codec.Unmarshal(b, &r); err != nil {
		return nil, grid.Rejected("decode", err)
	}
	return &r, nil
}

// writeRecord stores r, or deletes the key once r holds nothing.
func writeRecord(txn *badger.Txn, k []byte, r *record) error {
	if len(r.Columns) == 0 && len(r.Collections) == 0 {
		return txn.Delete(k)
	}
	b, err := codec.Marshal(r)
	if err != nil {
		return grid.Rejected("encode", err)
	}
	return txn.Set(k, b)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (d *Dialect) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < d.config.MaxRetries; i++ {
		if err = ctx.Err(); err != nil {
			return mapError(op, err)
		}
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return mapError(op, err)
		}
	}
	return mapError(op, err)
}

func (d *Dialect) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return mapError(op, err)
	}
	return mapError(op, d.db.View(fn))
}

// GetTuple reads the record of key.
func (d *Dialect) GetTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	var r *record
	err := d.view(ctx, "get_tuple", func(txn *badger.Txn) error {
		var err error
		r, err = readRecord(txn, tupleKey(key))
		return err
	})
	if err != nil || !r.hasColumns() {
		return nil, err
	}
	return grid.NewTupleFromSnapshot(grid.MapSnapshot(r.Columns), grid.SnapshotUpdate), nil
}

// CreateTuple returns an empty insert tuple. Nothing is written.
func (d *Dialect) CreateTuple(ctx context.Context, key grid.EntityKey) (*grid.Tuple, error) {
	return grid.NewTuple(), nil
}

// InsertOrUpdateTuple replays tuple's change log onto the stored record.
// An insert tuple fails if the record already holds columns.
func (d *Dialect) InsertOrUpdateTuple(ctx context.Context, key grid.EntityKey, tuple *grid.Tuple) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	return d.update(ctx, "insert_or_update_tuple", func(txn *badger.Txn) error {
		return applyTuple(txn, key, tuple)
	})
}

func applyTuple(txn *badger.Txn, key grid.EntityKey, tuple *grid.Tuple) error {
	k := tupleKey(key)
	r, err := readRecord(txn, k)
	if err != nil {
		return err
	}
	if tuple.SnapshotType() == grid.SnapshotInsert && r.hasColumns() {
		return &grid.TupleAlreadyExistsError{Key: key}
	}
	if r == nil {
		r = &record{}
	}
	if tuple.SnapshotType() == grid.SnapshotInsert {
		r.Columns = tuple.Map()
	} else {
		r.Columns = grid.ApplyOperations(r.Columns, tuple.Operations())
	}
	values := key.ColumnValues()
	for i, c := range key.ColumnNames() {
		r.Columns[c] = values[i]
	}
	return writeRecord(txn, k, r)
}

// RemoveTuple deletes the record together with its in-entity associations.
func (d *Dialect) RemoveTuple(ctx context.Context, key grid.EntityKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero entity key", grid.ErrInvalidKey)
	}
	return d.update(ctx, "remove_tuple", func(txn *badger.Txn) error {
		return txn.Delete(tupleKey(key))
	})
}

// ForEachTuple iterates the records of every table in key order within one
// read transaction per table.
func (d *Dialect) ForEachTuple(ctx context.Context, consumer grid.TupleConsumer, metas ...*grid.EntityKeyMetadata) error {
	for _, meta := range metas {
		var consumerErr error
		err := d.view(ctx, "for_each_tuple", func(txn *badger.Txn) error {
			prefix := tuplePrefix(meta.Table())
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				b, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				var r record
				if err := codec.Unmarshal(b, &r); err != nil {
					return grid.Rejected("decode", err)
				}
				if !r.hasColumns() {
					continue
				}
				if err := consumer(meta, grid.NewTupleFromSnapshot(grid.MapSnapshot(r.Columns), grid.SnapshotUpdate)); err != nil {
					consumerErr = err
					return nil
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if consumerErr != nil {
			return consumerErr
		}
	}
	return nil
}
