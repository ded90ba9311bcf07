package collect

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Resolver maps an external name to an Entity.
type Resolver interface {
	Resolve(name string) (Entity, bool)
}

// Registry is an in-memory, read-only index of entities by external name and
// by type. It is built once per collection run and is safe for concurrent
// readers.
type Registry struct {
	byName map[string]Entity
	byType map[EntityType][]Entity
}

// NewRegistry indexes entities. When two entities share a name, the one with
// the lowest id wins so that resolution does not depend on input order.
func NewRegistry(entities []Entity) *Registry {
	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	r := &Registry{
		byName: make(map[string]Entity, len(sorted)),
		byType: make(map[EntityType][]Entity),
	}
	for _, e := range sorted {
		if _, ok := r.byName[e.Name]; !ok {
			r.byName[e.Name] = e
		}
		r.byType[e.Type] = append(r.byType[e.Type], e)
	}
	// lower-cased aliases are only added where they don't shadow a real name.
	for _, e := range sorted {
		lower := strings.ToLower(e.Name)
		if _, ok := r.byName[lower]; !ok {
			r.byName[lower] = e
		}
	}
	return r
}

// LoadRegistry builds a Registry from every entity of the given types in
// store.
func LoadRegistry(ctx context.Context, store EntityStore, types ...EntityType) (*Registry, error) {
	all := make([]Entity, 0)
	for _, t := range types {
		ents, err := store.EntitiesByType(ctx, t)
		if err != nil {
			return nil, errors.Wrapf(err, "listing entities of type %s", t)
		}
		all = append(all, ents...)
	}
	return NewRegistry(all), nil
}

// Resolve returns the entity with the given external name. Names are matched
// exactly first and then lower-cased, since the warehouse compares names
// case-insensitively.
func (r *Registry) Resolve(name string) (Entity, bool) {
	if e, ok := r.byName[name]; ok {
		return e, true
	}
	e, ok := r.byName[strings.ToLower(name)]
	return e, ok
}

// AllOfType returns the entities of type t in ascending id order. The
// returned slice is a copy.
func (r *Registry) AllOfType(t EntityType) []Entity {
	ents := r.byType[t]
	ret := make([]Entity, len(ents))
	copy(ret, ents)
	return ret
}

// Names returns the external names of the entities of type t, in the same
// order as AllOfType.
func (r *Registry) Names(t EntityType) []string {
	ents := r.byType[t]
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entities in the registry.
func (r *Registry) Len() int {
	n := 0
	for _, ents := range r.byType {
		n += len(ents)
	}
	return n
}
