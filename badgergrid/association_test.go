package badgergrid_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/lattice/badgergrid"
	"github.com/jacentio/lattice/grid"
)

var (
	userRoles = must(grid.NewAssociationKeyMetadata(grid.AssociationKeyMetadataSpec{
		Table:             "user_roles",
		ColumnNames:       []string{"user_id"},
		RowKeyColumnNames: []string{"user_id", "role_id"},
		CollectionRole:    "roles",
		Kind:              grid.AssociationKindAssociation,
		AssociatedEntity:  roles,
	}))
	addresses = must(grid.NewAssociationKeyMetadata(grid.AssociationKeyMetadataSpec{
		Table:                  "user_addresses",
		ColumnNames:            []string{"user_id"},
		RowKeyColumnNames:      []string{"user_id", "idx"},
		RowKeyIndexColumnNames: []string{"idx"},
		CollectionRole:         "addresses",
		Kind:                   grid.AssociationKindEmbeddedCollection,
	}))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func rolesKey(userID string) grid.AssociationKey {
	return grid.MustAssociationKey(userRoles, userKey(userID), userID)
}

func roleRow(t *testing.T, userID, roleID string) (grid.RowKey, *grid.Tuple) {
	t.Helper()
	k, err := userRoles.RowKeyBuilder().Values(map[string]any{"user_id": userID, "role_id": roleID}).Build()
	require.NoError(t, err)
	row := grid.NewTuple()
	row.Put("user_id", userID)
	row.Put("role_id", roleID)
	return k, row
}

func roleIDs(t *testing.T, a *grid.Association) []string {
	t.Helper()
	var ids []string
	for _, k := range a.RowKeys() {
		v, ok := k.ColumnValue("role_id")
		require.True(t, ok)
		ids = append(ids, v.(string))
	}
	return ids
}

func TestAssociations(t *testing.T) {
	for _, storage := range []badgergrid.AssociationStorage{badgergrid.InEntity, badgergrid.AssociationKeys} {
		t.Run(string(storage), func(t *testing.T) {
			d := newDialect(t, func(c *badgergrid.Config) { c.AssociationStorage = storage })
			ctx := context.Background()
			insertUser(t, d, "u1", map[string]any{"name": "alice"})

			assert.Equal(t, storage == badgergrid.InEntity, d.IsStoredInEntityStructure(userRoles))
			assert.True(t, d.IsStoredInEntityStructure(addresses))

			got, err := d.GetAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			assert.Nil(t, got)

			assoc, err := d.CreateAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			for _, r := range []string{"admin", "editor", "viewer"} {
				k, row := roleRow(t, "u1", r)
				assoc.Put(k, row)
			}
			require.NoError(t, d.InsertOrUpdateAssociation(ctx, rolesKey("u1"), assoc))

			got, err = d.GetAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.ElementsMatch(t, []string{"admin", "editor", "viewer"}, roleIDs(t, got))

			owner, err := d.GetTuple(ctx, userKey("u1"))
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name"}, owner.ColumnNames())

			editor, _ := roleRow(t, "u1", "editor")
			got.Remove(editor)
			require.NoError(t, d.InsertOrUpdateAssociation(ctx, rolesKey("u1"), got))
			got, err = d.GetAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"admin", "viewer"}, roleIDs(t, got))

			got.Clear()
			k, row := roleRow(t, "u1", "owner")
			got.Put(k, row)
			require.NoError(t, d.InsertOrUpdateAssociation(ctx, rolesKey("u1"), got))
			got, err = d.GetAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			assert.Equal(t, []string{"owner"}, roleIDs(t, got))

			require.NoError(t, d.RemoveAssociation(ctx, rolesKey("u1")))
			got, err = d.GetAssociation(ctx, rolesKey("u1"))
			require.NoError(t, err)
			assert.Nil(t, got)

			owner, err = d.GetTuple(ctx, userKey("u1"))
			require.NoError(t, err)
			assert.NotNil(t, owner)
		})
	}
}

func TestAssociation_InEntityBeforeOwner(t *testing.T) {
	d := newDialect(t, nil)
	ctx := context.Background()

	assoc := grid.NewAssociation()
	k, row := roleRow(t, "u1", "admin")
	assoc.Put(k, row)
	require.NoError(t, d.InsertOrUpdateAssociation(ctx, rolesKey("u1"), assoc))

	owner, err := d.GetTuple(ctx, userKey("u1"))
	require.NoError(t, err)
	assert.Nil(t, owner)

	insertUser(t, d, "u1", nil)
	got, err := d.GetAssociation(ctx, rolesKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roleIDs(t, got))

	// Removing the last collection of a record without columns drops it
	require.NoError(t, d.RemoveTuple(ctx, userKey("u1")))
	require.NoError(t, d.InsertOrUpdateAssociation(ctx, rolesKey("u1"), assoc))
	require.NoError(t, d.RemoveAssociation(ctx, rolesKey("u1")))
	count := 0
	require.NoError(t, d.ForEachTuple(ctx, func(*grid.EntityKeyMetadata, *grid.Tuple) error {
		count++
		return nil
	}, users))
	assert.Zero(t, count)
}

func TestAssociation_EmbeddedIndex(t *testing.T) {
	d := newDialect(t, nil)
	ctx := context.Background()
	insertUser(t, d, "u1", nil)

	key := grid.MustAssociationKey(addresses, userKey("u1"), "u1")
	assoc := grid.NewAssociation()
	for i, city := range []string{"Lyon", "Oslo"} {
		rk, err := addresses.RowKeyBuilder().Values(map[string]any{"user_id": "u1", "idx": i}).Build()
		require.NoError(t, err)
		row := grid.NewTuple()
		row.Put("city", city)
		assoc.Put(rk, row)
	}
	require.NoError(t, d.InsertOrUpdateAssociation(ctx, key, assoc))

	got, err := d.GetAssociation(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2, got.Size())

	rk, err := addresses.RowKeyBuilder().Values(map[string]any{"user_id": "u1", "idx": 1}).Build()
	require.NoError(t, err)
	row, ok := got.Get(rk)
	require.True(t, ok)
	city, _ := row.Get("city")
	assert.Equal(t, "Oslo", city)
}

func TestExecuteBatch(t *testing.T) {
	d := newDialect(t, func(c *badgergrid.Config) { c.AssociationStorage = badgergrid.AssociationKeys })
	ctx := context.Background()
	insertUser(t, d, "y", nil)

	insertX := grid.NewTuple()
	insertX.Put("id", "x")
	insertX.Put("name", "first")
	updateX := grid.NewTupleFromSnapshot(grid.MapSnapshot{"id": "x", "name": "first"}, grid.SnapshotUpdate)
	updateX.Put("name", "second")
	assoc := grid.NewAssociation()
	k, row := roleRow(t, "x", "admin")
	assoc.Put(k, row)

	q := grid.NewOperationsQueue()
	require.NoError(t, q.Add(grid.InsertOrUpdateTupleOp{Key: userKey("x"), Tuple: insertX}))
	require.NoError(t, q.Add(grid.InsertOrUpdateTupleOp{Key: userKey("x"), Tuple: updateX}))
	require.NoError(t, q.Add(grid.InsertOrUpdateAssociationOp{Key: rolesKey("x"), Association: assoc}))
	require.NoError(t, q.Add(grid.RemoveTupleOp{Key: userKey("y")}))
	require.NoError(t, grid.NewCoordinator(d).Flush(ctx, q))
	assert.True(t, q.IsClosed())

	x, err := d.GetTuple(ctx, userKey("x"))
	require.NoError(t, err)
	name, _ := x.Get("name")
	assert.Equal(t, "second", name)

	y, err := d.GetTuple(ctx, userKey("y"))
	require.NoError(t, err)
	assert.Nil(t, y)

	got, err := d.GetAssociation(ctx, rolesKey("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roleIDs(t, got))
}

func TestExecuteBatch_IsAtomic(t *testing.T) {
	d := newDialect(t, nil)
	ctx := context.Background()
	insertUser(t, d, "taken", nil)

	fresh := grid.NewTuple()
	fresh.Put("id", "fresh")
	dup := grid.NewTuple()
	dup.Put("id", "taken")

	q := grid.NewOperationsQueue()
	require.NoError(t, q.Add(grid.InsertOrUpdateTupleOp{Key: userKey("fresh"), Tuple: fresh}))
	require.NoError(t, q.Add(grid.RemoveTupleOp{Key: userKey("other")}))
	require.NoError(t, q.Add(grid.InsertOrUpdateTupleOp{Key: userKey("taken"), Tuple: dup}))

	err := d.ExecuteBatch(ctx, q)
	var exists *grid.TupleAlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.True(t, exists.Key.Equal(userKey("taken")))

	got, err := d.GetTuple(ctx, userKey("fresh"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExecuteBatch_ReinsertAfterRemove(t *testing.T) {
	d := newDialect(t, nil)
	ctx := context.Background()
	insertUser(t, d, "x", map[string]any{"name": "old"})

	again := grid.NewTuple()
	again.Put("id", "x")
	again.Put("name", "new")

	q := grid.NewOperationsQueue()
	require.NoError(t, q.Add(grid.RemoveTupleOp{Key: userKey("x")}))
	require.NoError(t, q.Add(grid.InsertOrUpdateTupleOp{Key: userKey("x"), Tuple: again}))
	require.NoError(t, d.ExecuteBatch(ctx, q))

	got, err := d.GetTuple(ctx, userKey("x"))
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "new", name)
}
