package collect

import (
	"context"
)

// EntityStore is the read side of the entity store used to build a Registry.
// EntitiesByType must return entities in ascending id order.
type EntityStore interface {
	EntitiesByType(ctx context.Context, t EntityType) ([]Entity, error)
}

// EntityWriter adds or replaces entities by id. It is used by import
// commands and tests; collectors never write entities.
type EntityWriter interface {
	PutEntities(ctx context.Context, entities []Entity) error
}

// EdgeStore persists edges. UpsertEdges must be all-or-nothing: either every
// edge in the slice is written or none is. Edges sharing an EdgeKey with an
// existing edge replace it. The returned count is the number of edges which
// were new or changed.
type EdgeStore interface {
	UpsertEdges(ctx context.Context, edges []Edge) (int, error)
}

// EdgeCounter is implemented by stores which can report how many edges they
// hold.
type EdgeCounter interface {
	CountEdges(ctx context.Context) (int, error)
}

// Store is the full interface satisfied by the storage backends in this
// module.
type Store interface {
	EntityStore
	EntityWriter
	EdgeStore
	EdgeCounter
	Close() error
}
