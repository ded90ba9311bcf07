package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// Store is an in-memory collect.Store. FailNext makes the next n calls to
// UpsertEdges fail without writing anything, which is how tests exercise
// flush retries.
type Store struct {
	mu       sync.Mutex
	entities map[uint64]collect.Entity
	edges    map[collect.EdgeKey]collect.Edge

	// Batches holds the size of every successful UpsertEdges call.
	Batches []int
	// Calls counts every UpsertEdges call, including failed ones.
	Calls int
	// FailNext is the number of upcoming UpsertEdges calls that will fail.
	FailNext int
	// FailErr is returned by failing calls. It defaults to a generic error.
	FailErr error
}

// NewStore returns a Store holding entities.
func NewStore(entities ...collect.Entity) *Store {
	s := &Store{
		entities: make(map[uint64]collect.Entity),
		edges:    make(map[collect.EdgeKey]collect.Edge),
	}
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return s
}

// EntitiesByType implements collect.EntityStore.
func (s *Store) EntitiesByType(ctx context.Context, t collect.EntityType) ([]collect.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]collect.Entity, 0)
	for _, e := range s.entities {
		if e.Type == t {
			ret = append(ret, e)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

// PutEntities implements collect.EntityWriter.
func (s *Store) PutEntities(ctx context.Context, entities []collect.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return nil
}

// UpsertEdges implements collect.EdgeStore.
func (s *Store) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.FailNext > 0 {
		s.FailNext--
		if s.FailErr != nil {
			return 0, s.FailErr
		}
		return 0, errors.New("mock store: injected failure")
	}
	n := 0
	for _, e := range edges {
		if old, ok := s.edges[e.Key()]; !ok || old != e {
			n++
		}
		s.edges[e.Key()] = e
	}
	s.Batches = append(s.Batches, len(edges))
	return n, nil
}

// CountEdges implements collect.EdgeCounter.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges), nil
}

// Edges returns every stored edge ordered by key.
func (s *Store) Edges() []collect.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]collect.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		ret = append(ret, e)
	}
	sort.Slice(ret, func(i, j int) bool {
		a, b := ret[i], ret[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Kind < b.Kind
	})
	return ret
}

// Close implements collect.Store.
func (s *Store) Close() error { return nil }
