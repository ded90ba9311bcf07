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

// Package pilosa mirrors edges into a Pilosa index as adjacency bitmaps:
// each edge kind is a set field whose row is the From entity and whose
// column is the To entity, so Row(depends-on=<id>) is everything <id>
// depends on.
package pilosa

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/opensource-observer/collect"
	gopilosa "github.com/pilosa/go-pilosa"
	"github.com/pkg/errors"
)

// EdgeStore is a collect.EdgeStore writing to a Pilosa index. Depth is not
// stored; setting a bit which is already set is a no-op, so re-imports are
// idempotent.
type EdgeStore struct {
	client    *gopilosa.Client
	index     *gopilosa.Index
	batchSize int

	mu     sync.Mutex
	fields map[collect.EdgeKind]*gopilosa.Field
}

// NewEdgeStore connects to the cluster at hosts and ensures that indexName
// exists.
func NewEdgeStore(hosts []string, indexName string, batchSize int) (*EdgeStore, error) {
	client, err := gopilosa.NewClient(hosts,
		gopilosa.OptClientSocketTimeout(time.Minute*60),
		gopilosa.OptClientConnectTimeout(time.Second*60))
	if err != nil {
		return nil, errors.Wrap(err, "creating pilosa cluster client")
	}
	schema := gopilosa.NewSchema()
	index := schema.Index(indexName)
	if err := client.SyncSchema(schema); err != nil {
		return nil, errors.Wrap(err, "synchronizing schema")
	}
	if batchSize < 1 {
		batchSize = 100000
	}
	return &EdgeStore{
		client:    client,
		index:     index,
		batchSize: batchSize,
		fields:    make(map[collect.EdgeKind]*gopilosa.Field),
	}, nil
}

// fieldName maps an edge kind onto a valid Pilosa field name.
func fieldName(kind collect.EdgeKind) string {
	return strings.ToLower(strings.Replace(string(kind), "_", "-", -1))
}

func (s *EdgeStore) field(kind collect.EdgeKind) (*gopilosa.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields[kind]; ok {
		return f, nil
	}
	f := s.index.Field(fieldName(kind), gopilosa.OptFieldTypeSet(gopilosa.CacheTypeRanked, 100000))
	if err := s.client.EnsureField(f); err != nil {
		return nil, errors.Wrapf(err, "creating field '%s'", f.Name())
	}
	s.fields[kind] = f
	return f, nil
}

// UpsertEdges implements collect.EdgeStore. It returns the number of edges
// imported, since Pilosa does not report which bits were already set.
func (s *EdgeStore) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	for kind, cols := range columnsByKind(edges) {
		f, err := s.field(kind)
		if err != nil {
			return 0, err
		}
		err = s.client.ImportField(f, &columnIterator{cols: cols}, gopilosa.OptImportBatchSize(s.batchSize))
		if err != nil {
			return 0, errors.Wrapf(err, "importing %d %s edges", len(cols), kind)
		}
	}
	return len(edges), nil
}

func columnsByKind(edges []collect.Edge) map[collect.EdgeKind][]gopilosa.Column {
	ret := make(map[collect.EdgeKind][]gopilosa.Column)
	for _, e := range edges {
		ret[e.Kind] = append(ret[e.Kind], gopilosa.Column{RowID: e.FromID, ColumnID: e.ToID})
	}
	return ret
}

// columnIterator is a gopilosa.RecordIterator over a slice.
type columnIterator struct {
	cols []gopilosa.Column
	pos  int
}

func (c *columnIterator) NextRecord() (gopilosa.Record, error) {
	if c.pos >= len(c.cols) {
		return nil, io.EOF
	}
	c.pos++
	return c.cols[c.pos-1], nil
}
