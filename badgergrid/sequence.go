package badgergrid

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
)

func sequenceKey(key grid.IdSourceKey) []byte {
	if key.Kind() == grid.IdSourceSequence {
		return []byte("q" + sep + key.Name())
	}
	return []byte("s" + sep + key.Name() + sep + key.Segment())
}

func identityKey(table string) []byte {
	return []byte("i" + sep + table)
}

// advance reads the counter at k and stores the next value. A missing
// counter yields initial.
func advance(txn *badger.Txn, k []byte, initial, step int64) (int64, error) {
	next := initial
	item, err := txn.Get(k)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		b, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if len(b) != 8 {
			return 0, grid.Rejected("decode", fmt.Errorf("counter %q holds %d bytes", k, len(b)))
		}
		next = int64(binary.BigEndian.Uint64(b)) + step
	}
	return next, txn.Set(k, binary.BigEndian.AppendUint64(nil, uint64(next)))
}

// NextValue advances the counter in a transaction of its own. Concurrent
// callers conflict on commit and retry, so no value is handed out twice.
func (d *Dialect) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	var v int64
	err := d.update(ctx, "next_value", func(txn *badger.Txn) error {
		var err error
		v, err = advance(txn, sequenceKey(req.Key), req.InitialValue, req.Step())
		return err
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// CreateTupleForTable returns an empty insert tuple for a table whose key
// is generated on insert.
func (d *Dialect) CreateTupleForTable(ctx context.Context, meta *grid.EntityKeyMetadata) (*grid.Tuple, error) {
	return grid.NewTuple(), nil
}

// InsertTuple generates the next key of meta's table, stores tuple under
// it and returns the key. The key column of tuple is set to the generated
// value. Only single-column keys can be generated.
func (d *Dialect) InsertTuple(ctx context.Context, meta *grid.EntityKeyMetadata, tuple *grid.Tuple) (grid.EntityKey, error) {
	columns := meta.ColumnNames()
	if len(columns) != 1 {
		return grid.EntityKey{}, fmt.Errorf("%w: identity key of %s must have one column", grid.ErrInvalidKey, meta.Table())
	}

	var key grid.EntityKey
	err := d.update(ctx, "insert_tuple", func(txn *badger.Txn) error {
		id, err := advance(txn, identityKey(meta.Table()), 1, 1)
		if err != nil {
			return err
		}
		key, err = grid.NewEntityKey(meta, id)
		if err != nil {
			return err
		}
		r := &record{Columns: tuple.Map()}
		r.Columns[columns[0]] = id
		return writeRecord(txn, tupleKey(key), r)
	})
	if err != nil {
		return grid.EntityKey{}, err
	}
	id, _ := key.ColumnValue(columns[0])
	tuple.Put(columns[0], id)
	return key, nil
}
