package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/test"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the database named by OSO_TEST_POSTGRES and
// empties it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("OSO_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("OSO_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `TRUNCATE entities, edges`)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreEntities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutEntities(ctx, []collect.Entity{
		{ID: 9, Name: "react", Type: collect.NPMPackage},
		{ID: 3, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 4, Name: "oso", Type: collect.GithubOrg},
	}))
	ents, err := s.EntitiesByType(ctx, collect.NPMPackage)
	require.NoError(t, err)
	require.Equal(t, []collect.Entity{
		{ID: 3, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 9, Name: "react", Type: collect.NPMPackage},
	}, ents)
}

func TestStoreUpsertEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	edges := test.Edges([2]uint64{2, 1}, [2]uint64{3, 1})

	n, err := s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	edges[0].Depth = 3
	n, err = s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, err := s.CountEdges(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStoreRejectsOutOfRangeIDs(t *testing.T) {
	ctx := context.Background()
	s := &Store{} // rejected before the pool is used
	_, err := s.UpsertEdges(ctx, []collect.Edge{{FromID: 1, ToID: 1 << 63, Kind: collect.DependsOn, Depth: 1}})
	require.Error(t, err)
	require.True(t, collect.IsPermanent(err))
	require.Contains(t, err.Error(), "does not fit in a BIGINT")

	err = s.PutEntities(ctx, []collect.Entity{{ID: 1 << 63, Name: "huge", Type: collect.NPMPackage}})
	require.Error(t, err)
	require.True(t, collect.IsPermanent(err))
}
