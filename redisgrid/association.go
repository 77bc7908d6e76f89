package redisgrid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
	"github.com/jacentio/lattice/internal/codec"
	"github.com/jacentio/lattice/internal/shard"
)

// collectionPrefix marks owner hash fields that hold an embedded collection.
const collectionPrefix = "_assoc."

func collectionField(meta *grid.AssociationKeyMetadata) string {
	return collectionPrefix + meta.CollectionRole()
}

func isCollectionField(name string) bool {
	return strings.HasPrefix(name, collectionPrefix)
}

func (d *Dialect) associationKey(key grid.AssociationKey) string {
	return fmt.Sprintf("%s:a:%s:%s", d.config.Prefix, key.Table(), shard.Digest(key.ID()))
}

// IsStoredInEntityStructure reports true for embedded collections and, with
// InEntity storage, for every association.
func (d *Dialect) IsStoredInEntityStructure(meta *grid.AssociationKeyMetadata) bool {
	return meta.Kind() == grid.AssociationKindEmbeddedCollection || d.config.AssociationStorage == InEntity
}

// GetAssociation loads the rows of key, or nil if none are stored.
func (d *Dialect) GetAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	var raw []map[string]any
	if d.IsStoredInEntityStructure(key.Metadata()) {
		b, err := d.client.HGet(ctx, d.tupleKey(key.Owner()), collectionField(key.Metadata())).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, mapError("hget", err)
		}
		if raw, err = codec.DecodeRows(b); err != nil {
			return nil, err
		}
	} else {
		fields, err := d.client.HGetAll(ctx, d.associationKey(key)).Result()
		if err != nil {
			return nil, mapError("hgetall", err)
		}
		if len(fields) == 0 {
			return nil, nil
		}
		for _, f := range sortedKeys(fields) {
			m, err := codec.DecodeRecord([]byte(fields[f]))
			if err != nil {
				return nil, err
			}
			raw = append(raw, m)
		}
	}

	rows := make([]grid.AssociationRow, 0, len(raw))
	for _, m := range raw {
		rowKey, err := key.Metadata().RowKeyBuilder().Values(m).Build()
		if err != nil {
			return nil, err
		}
		rows = append(rows, grid.AssociationRow{
			Key:   rowKey,
			Tuple: grid.NewTupleFromSnapshot(grid.MapSnapshot(m), grid.SnapshotUpdate),
		})
	}
	return grid.NewAssociationFromSnapshot(grid.NewMapAssociationSnapshot(rows...)), nil
}

// CreateAssociation returns an empty association. Nothing is written.
func (d *Dialect) CreateAssociation(ctx context.Context, key grid.AssociationKey) (*grid.Association, error) {
	return grid.NewAssociation(), nil
}

// InsertOrUpdateAssociation rewrites the embedded field, or applies the net
// row changes to the association hash.
func (d *Dialect) InsertOrUpdateAssociation(ctx context.Context, key grid.AssociationKey, assoc *grid.Association) error {
	cmds, err := d.associationCommands(key, assoc)
	if err != nil {
		return err
	}
	return d.exec(ctx, cmds)
}

// RemoveAssociation drops the embedded field, or the association hash.
func (d *Dialect) RemoveAssociation(ctx context.Context, key grid.AssociationKey) error {
	return d.exec(ctx, d.removeAssociationCommands(key))
}

func (d *Dialect) associationCommands(key grid.AssociationKey, assoc *grid.Association) ([]command, error) {
	if d.IsStoredInEntityStructure(key.Metadata()) {
		rows := make([]map[string]any, 0, assoc.Size())
		for _, row := range assoc.Rows() {
			rows = append(rows, rowRecord(row))
		}
		b, err := codec.EncodeRows(rows)
		if err != nil {
			return nil, err
		}
		owner, field := d.tupleKey(key.Owner()), collectionField(key.Metadata())
		return []command{func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HSet(ctx, owner, field, b)
		}}, nil
	}

	k := d.associationKey(key)
	ops := assoc.Operations()
	start := 0
	for i, op := range ops {
		if op.Type == grid.ClearOperation {
			start = i + 1
		}
	}

	var cmds []command
	if start > 0 {
		cmds = append(cmds, func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.Del(ctx, k)
		})
	}
	var values []any
	var deletes []string
	written := map[string]bool{}
	for _, op := range ops[start:] {
		if op.Type == grid.ClearOperation {
			continue
		}
		field := shard.Digest(op.Key.ID())
		if written[field] {
			continue
		}
		written[field] = true

		row, ok := assoc.Get(op.Key)
		if !ok {
			deletes = append(deletes, field)
			continue
		}
		b, err := codec.EncodeRecord(rowRecord(grid.AssociationRow{Key: op.Key, Tuple: row}))
		if err != nil {
			return nil, err
		}
		values = append(values, field, b)
	}
	if len(values) > 0 {
		cmds = append(cmds, func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HSet(ctx, k, values...)
		})
	}
	// A cleared hash is gone already
	if len(deletes) > 0 && start == 0 {
		cmds = append(cmds, func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HDel(ctx, k, deletes...)
		})
	}
	return cmds, nil
}

func (d *Dialect) removeAssociationCommands(key grid.AssociationKey) []command {
	if d.IsStoredInEntityStructure(key.Metadata()) {
		owner, field := d.tupleKey(key.Owner()), collectionField(key.Metadata())
		return []command{func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HDel(ctx, owner, field)
		}}
	}
	k := d.associationKey(key)
	return []command{func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, k)
	}}
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
