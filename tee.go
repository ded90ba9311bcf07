package collect

import (
	"context"

	"github.com/pkg/errors"
)

// TeeEdgeStore writes every batch to a primary store and then to each
// mirror in order. The count returned is the primary's. A failing mirror
// fails the whole call so that the recorder retries the batch; since every
// store upserts, the retry does not duplicate edges in the stores which had
// already accepted the batch.
type TeeEdgeStore struct {
	Primary EdgeStore
	Mirrors []EdgeStore
}

// NewTeeEdgeStore returns primary unchanged if there are no mirrors.
func NewTeeEdgeStore(primary EdgeStore, mirrors ...EdgeStore) EdgeStore {
	if len(mirrors) == 0 {
		return primary
	}
	return &TeeEdgeStore{Primary: primary, Mirrors: mirrors}
}

// UpsertEdges implements EdgeStore.
func (t *TeeEdgeStore) UpsertEdges(ctx context.Context, edges []Edge) (int, error) {
	n, err := t.Primary.UpsertEdges(ctx, edges)
	if err != nil {
		return 0, errors.Wrap(err, "primary store")
	}
	for i, m := range t.Mirrors {
		if _, err := m.UpsertEdges(ctx, edges); err != nil {
			return 0, errors.Wrapf(err, "mirror %d", i)
		}
	}
	return n, nil
}
