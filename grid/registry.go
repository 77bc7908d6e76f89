package grid

import (
	"maps"
	"slices"
)

// Registry holds the known entity and association shapes, for components
// that only see table names (change feeds, maintenance tools).
type Registry struct {
	entities     map[string]*EntityKeyMetadata
	associations []*AssociationKeyMetadata
	byOwner      map[string][]*AssociationKeyMetadata
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:     make(map[string]*EntityKeyMetadata),
		associations: []*AssociationKeyMetadata{},
		byOwner:      make(map[string][]*AssociationKeyMetadata),
	}
}

// RegisterEntity adds an entity shape. A later registration for the same
// table replaces the earlier one.
func (r *Registry) RegisterEntity(meta *EntityKeyMetadata) {
	r.entities[meta.Table()] = meta
}

// RegisterAssociation adds an association owned by entities of owner.
// The association's owning columns hold the owner's key values, in order.
func (r *Registry) RegisterAssociation(owner *EntityKeyMetadata, assoc *AssociationKeyMetadata) {
	r.RegisterEntity(owner)
	r.associations = append(r.associations, assoc)
	r.byOwner[owner.Table()] = append(r.byOwner[owner.Table()], assoc)
}

// Entity returns the entity shape registered for table.
func (r *Registry) Entity(table string) (*EntityKeyMetadata, bool) {
	m, ok := r.entities[table]
	return m, ok
}

// Entities returns every registered entity shape, ordered by table.
func (r *Registry) Entities() []*EntityKeyMetadata {
	tables := slices.Sorted(maps.Keys(r.entities))
	out := make([]*EntityKeyMetadata, len(tables))
	for i, t := range tables {
		out[i] = r.entities[t]
	}
	return out
}

// AssociationsOf returns the associations owned by entities of ownerTable.
func (r *Registry) AssociationsOf(ownerTable string) []*AssociationKeyMetadata {
	return r.byOwner[ownerTable]
}

// AllAssociations returns every registered association.
func (r *Registry) AllAssociations() []*AssociationKeyMetadata {
	return r.associations
}

// HasAssociations reports whether ownerTable owns any association.
func (r *Registry) HasAssociations(ownerTable string) bool {
	return len(r.byOwner[ownerTable]) > 0
}

// AssociationKeysOf returns the key of every association owned by owner.
func (r *Registry) AssociationKeysOf(owner EntityKey) ([]AssociationKey, error) {
	metas := r.byOwner[owner.Table()]
	keys := make([]AssociationKey, 0, len(metas))
	for _, m := range metas {
		k, err := NewAssociationKey(m, owner, owner.ColumnValues()...)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
