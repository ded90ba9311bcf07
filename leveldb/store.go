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

package leveldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/fnv"
	"os"
	"sort"
	"sync"

	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes. Entity keys are 'n' type 0x00 id, edge keys are 'e' from to
// kind.
const (
	entityPrefix = 'n'
	edgePrefix   = 'e'
)

var _ collect.Store = &Store{}

// Store is a collect.Store in a leveldb directory.
type Store struct {
	db   *leveldb.DB
	lock keyLocker
}

// NewStore opens (creating if needed) the leveldb at dirname.
func NewStore(dirname string) (*Store, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	db, err := leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &Store{db: db, lock: newStripedLock(1000)}, nil
}

// Close closes the underlying leveldb.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "closing leveldb")
}

func entityTypePrefix(t collect.EntityType) []byte {
	b := make([]byte, 0, len(t)+2)
	b = append(b, entityPrefix)
	b = append(b, t...)
	return append(b, 0)
}

func entityKey(e collect.Entity) []byte {
	b := entityTypePrefix(e.Type)
	return binary.BigEndian.AppendUint64(b, e.ID)
}

func edgeKey(e collect.Edge) []byte {
	b := make([]byte, 1, 17+len(e.Kind))
	b[0] = edgePrefix
	b = binary.BigEndian.AppendUint64(b, e.FromID)
	b = binary.BigEndian.AppendUint64(b, e.ToID)
	return append(b, e.Kind...)
}

// EntitiesByType implements collect.EntityStore.
func (s *Store) EntitiesByType(ctx context.Context, t collect.EntityType) ([]collect.Entity, error) {
	prefix := entityTypePrefix(t)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	ents := make([]collect.Entity, 0)
	for iter.Next() {
		ents = append(ents, collect.Entity{
			ID:   binary.BigEndian.Uint64(iter.Key()[len(prefix):]),
			Name: string(iter.Value()),
			Type: t,
		})
	}
	return ents, errors.Wrapf(iter.Error(), "listing %s entities", t)
}

// PutEntities implements collect.EntityWriter. Entities are written in one
// atomic batch; an entity whose type changed is removed from its old type.
func (s *Store) PutEntities(ctx context.Context, entities []collect.Entity) error {
	batch := new(leveldb.Batch)
	for _, e := range entities {
		for _, t := range collect.EntityTypes() {
			if t != e.Type {
				batch.Delete(entityKey(collect.Entity{ID: e.ID, Type: t}))
			}
		}
		batch.Put(entityKey(e), []byte(e.Name))
	}
	return errors.Wrap(s.db.Write(batch, nil), "writing entity batch")
}

// UpsertEdges implements collect.EdgeStore. Writers touching the same keys
// are serialized so that the new-or-changed count is exact.
func (s *Store) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	keys := make([][]byte, len(edges))
	for i, e := range edges {
		keys[i] = edgeKey(e)
	}
	unlock := s.lock.LockAll(keys)
	defer unlock()

	batch := new(leveldb.Batch)
	pending := make(map[string][]byte, len(edges))
	for i, e := range edges {
		v := binary.BigEndian.AppendUint64(nil, uint64(e.Depth))
		old, ok := pending[string(keys[i])]
		if !ok {
			var err error
			old, err = s.db.Get(keys[i], nil)
			if err != nil && err != leveldb.ErrNotFound {
				return 0, errors.Wrap(err, "reading edge")
			}
		}
		if bytes.Equal(old, v) {
			continue
		}
		pending[string(keys[i])] = v
		batch.Put(keys[i], v)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, errors.Wrap(err, "writing edge batch")
	}
	return batch.Len(), nil
}

// CountEdges implements collect.EdgeCounter.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{edgePrefix}), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, errors.Wrap(iter.Error(), "counting edges")
}

type keyLocker interface {
	LockAll(keys [][]byte) (unlock func())
}

// stripedLock hashes keys onto a fixed set of mutexes.
type stripedLock struct {
	ms []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	return &stripedLock{
		ms: make([]sync.Mutex, n),
	}
}

// LockAll locks the stripes of every key, always in ascending stripe order
// so that concurrent callers cannot deadlock.
func (b *stripedLock) LockAll(keys [][]byte) func() {
	seen := make(map[int]struct{}, len(keys))
	stripes := make([]int, 0, len(keys))
	for _, k := range keys {
		hsh := fnv.New32a()
		hsh.Write(k) // never returns error for hash
		i := int(hsh.Sum32() % uint32(len(b.ms)))
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			stripes = append(stripes, i)
		}
	}
	sort.Ints(stripes)
	for _, i := range stripes {
		b.ms[i].Lock()
	}
	return func() {
		for j := len(stripes) - 1; j >= 0; j-- {
			b.ms[stripes[j]].Unlock()
		}
	}
}
