// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/test"
)

func TestStoreEntities(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(filepath.Join(t.TempDir(), "collect.db"))
	test.ErrNil(t, err, "NewStore")
	defer s.Close()

	err = s.PutEntities(ctx, []collect.Entity{
		{ID: 300, Name: "react", Type: collect.NPMPackage},
		{ID: 2, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 7, Name: "opensource-observer", Type: collect.GithubOrg},
	})
	test.ErrNil(t, err, "PutEntities")
	ents, err := s.EntitiesByType(ctx, collect.NPMPackage)
	test.ErrNil(t, err, "EntitiesByType")
	test.MustBe(t, []collect.Entity{
		{ID: 2, Name: "left-pad", Type: collect.NPMPackage},
		{ID: 300, Name: "react", Type: collect.NPMPackage},
	}, ents)

	// changing the type moves the entity
	err = s.PutEntities(ctx, []collect.Entity{{ID: 2, Name: "left-pad", Type: collect.GitRepository}})
	test.ErrNil(t, err, "PutEntities again")
	ents, err = s.EntitiesByType(ctx, collect.NPMPackage)
	test.ErrNil(t, err, "EntitiesByType")
	test.MustBe(t, 1, len(ents))

	ents, err = s.EntitiesByType(ctx, collect.EOAAddress)
	test.ErrNil(t, err, "EntitiesByType of missing type")
	test.MustBe(t, 0, len(ents))
}

func TestStoreUpsertEdges(t *testing.T) {
	ctx := context.Background()
	fname := filepath.Join(t.TempDir(), "collect.db")
	s, err := NewStore(fname)
	test.ErrNil(t, err, "NewStore")

	edges := test.Edges([2]uint64{2, 1}, [2]uint64{3, 1})
	n, err := s.UpsertEdges(ctx, edges)
	test.ErrNil(t, err, "UpsertEdges")
	test.MustBe(t, 2, n)

	n, err = s.UpsertEdges(ctx, edges)
	test.ErrNil(t, err, "UpsertEdges again")
	test.MustBe(t, 0, n)

	edges[1].Depth = 4
	n, err = s.UpsertEdges(ctx, edges)
	test.ErrNil(t, err, "UpsertEdges changed")
	test.MustBe(t, 1, n)
	test.ErrNil(t, s.Close(), "Close")

	s, err = NewStore(fname)
	test.ErrNil(t, err, "reopening")
	defer s.Close()
	count, err := s.CountEdges(ctx)
	test.ErrNil(t, err, "CountEdges")
	test.MustBe(t, 2, count)

	got := make([]collect.Edge, 0)
	err = s.Edges(ctx, func(e collect.Edge) error {
		got = append(got, e)
		return nil
	})
	test.ErrNil(t, err, "Edges")
	test.MustBe(t, edges, got)
}
