package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/test"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "collect.sqlite")
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.PutEntities(ctx, []collect.Entity{
		{ID: 9, Name: "react", Type: collect.NPMPackage},
		{ID: 3, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 4, Name: "oso", Type: collect.GithubOrg},
	}))
	require.NoError(t, s.PutEntities(ctx, []collect.Entity{{ID: 9, Name: "React", Type: collect.NPMPackage}}))
	ents, err := s.EntitiesByType(ctx, collect.NPMPackage)
	require.NoError(t, err)
	require.Equal(t, []collect.Entity{
		{ID: 3, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 9, Name: "React", Type: collect.NPMPackage},
	}, ents)

	edges := test.Edges([2]uint64{9, 3}, [2]uint64{4, 3})
	n, err := s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	edges[1].Depth = 2
	n, err = s.UpsertEdges(ctx, edges)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	count, err := s.CountEdges(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
