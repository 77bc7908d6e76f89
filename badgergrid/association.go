package badgergrid

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/internal/codec"
	"github.com/jacentio/lattice/internal/shard"
)

func associationPrefix(key grid.AssociationKey) []byte {
	return []byte("a" + sep + key.Table() + sep + shard.Digest(key.ID()) + sep)
}

func rowKey(key grid.AssociationKey, row grid.RowKey) []byte {
	return append(associationPrefix(key), shard.Digest(row.ID())...)
}

// IsStoredInEntityStructure reports true for embedded collections and, with
// InEntity storage, for every association.
func (d *Dialect) IsStoredInEntityStructure(meta *grid.AssociationKeyMetadata) bool {
	return meta.Kind() == grid.AssociationKindEmbeddedCollection || d.config.AssociationStorage == InEntity
}

// GetAssociation loads the rows of key, or nil if none are stored.
func (d *Dialect) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	var raw []map[string]any
	var found bool
	err := d.view(ctx, "get_association", func(txn *badger.Txn) error {
		if d.IsStoredInEntityStructure(key.Metadata()) {
			r, err := readRecord(txn, tupleKey(key.Owner()))
			if err != nil || r == nil {
				return err
			}
			raw, found = r.Collections[key.Metadata().CollectionRole()]
			return nil
		}
		return scanPrefix(txn, associationPrefix(key), func(_ []byte, value []byte) error {
			m, err := codec.DecodeRecord(value)
			if err != nil {
				return grid.Rejected("decode", err)
			}
			raw = append(raw, m)
			found = true
			return nil
		})
	})
	if err != nil || !found {
		return nil, err
	}

	rows := make([]grid.AssociationRow, 0, len(raw))
	for _, m := range raw {
		rk, err := key.Metadata().RowKeyBuilder().Values(m).Build()
		if err != nil {
			return nil, err
		}
		rows = append(rows, grid.AssociationRow{
			Key:   rk,
			Tuple: grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate),
		})
	}
	return grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(rows...)), nil
}

// CreateAssociation returns an empty association. Nothing is written.
func (d *Dialect) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	return grid.NewAssociation(), nil
}

// InsertOrUpdateAssociation rewrites the owner's collection, or applies the
// net row changes to the row keys.
func (d *Dialect) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	return d.update(ctx, "insert_or_update_association", func(txn *badger.Txn) error {
		return d.applyAssociation(txn, key, assoc)
	})
}

// RemoveAssociation drops the owner's collection, or every row key.
func (d *Dialect) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	return d.update(ctx, "remove_association", func(txn *badger.Txn) error {
		return d.removeAssociation(txn, key)
	})
}

func (d *Dialect) applyAssociation(txn *badger.Txn, key grid.AssociationKey, assoc *grid.Association) error {
	if d.IsStoredInEntityStructure(key.Metadata()) {
		k := tupleKey(key.Owner())
		r, err := readRecord(txn, k)
		if err != nil {
			return err
		}
		if r == nil {
			r = &record{}
		}
		if r.Collections == nil {
			r.Collections = map[string][]map[string]any{}
		}
		rows := make([]map[string]any, 0, assoc.Size())
		for _, row := range assoc.Rows() {
			rows = append(rows, rowRecord(row))
		}
		r.Collections[key.Metadata().CollectionRole()] = rows
		return writeRecord(txn, k, r)
	}

	ops := assoc.Operations()
	start := 0
	for i, op := range ops {
		if op.Type == grid.ClearOperation {
			start = i + 1
		}
	}
	if start > 0 {
		if err := deletePrefix(txn, associationPrefix(key)); err != nil {
			return err
		}
	}
	written := map[string]bool{}
	for _, op := range ops[start:] {
		if op.Type == grid.ClearOperation || written[op.Key.ID()] {
			continue
		}
		written[op.Key.ID()] = true

		k := rowKey(key, op.Key)
		row, ok := assoc.Get(op.Key)
		if !ok {
			if err := txn.Delete(k); err != nil {
				return err
			}
			continue
		}
		b, err := codec.EncodeRecord(rowRecord(grid.AssociationRow{Key: op.Key, Tuple: row}))
		if err != nil {
			return grid.Rejected("encode", err)
		}
		if err := txn.Set(k, b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dialect) removeAssociation(txn *badger.Txn, key grid.AssociationKey) error {
	if !d.IsStoredInEntityStructure(key.Metadata()) {
		return deletePrefix(txn, associationPrefix(key))
	}
	k := tupleKey(key.Owner())
	r, err := readRecord(txn, k)
	if err != nil || r == nil {
		return err
	}
	role := key.Metadata().CollectionRole()
	if _, ok := r.Collections[role]; !ok {
		return nil
	}
	delete(r.Collections, role)
	return writeRecord(txn, k, r)
}

// rowRecord stores the row content together with its row key values.
func rowRecord(row grid.AssociationRow) map[string]any {
	m := row.Tuple.Map()
	values := row.Key.ColumnValues()
	for i, c := range row.Key.ColumnNames() {
		m[c] = values[i]
	}
	return m
}

// scanPrefix calls fn for every key under prefix, in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every key under prefix. Keys are collected before
// deleting since the iterator sees the transaction's own writes.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
