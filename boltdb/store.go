package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

var (
	entityBucket = []byte("entities")
	edgeBucket   = []byte("edges")
)

// Store is a collect.Store in a single bolt file. Entities live in one
// nested bucket per type keyed by big-endian id; edges are keyed by
// from|to|kind and hold the depth.
type Store struct {
	Db *bolt.DB
}

// NewStore opens (creating if needed) the bolt file at filename.
func NewStore(filename string) (*Store, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second, NoGrowSync: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	db.MaxBatchDelay = 400 * time.Microsecond
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entityBucket); err != nil {
			return errors.Wrap(err, "creating entity bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(edgeBucket); err != nil {
			return errors.Wrap(err, "creating edge bucket")
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Store{Db: db}, nil
}

// Close syncs and closes the underlying boltdb.
func (s *Store) Close() error {
	err := s.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return s.Db.Close()
}

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func edgeKey(e collect.Edge) []byte {
	b := make([]byte, 16, 16+len(e.Kind))
	binary.BigEndian.PutUint64(b, e.FromID)
	binary.BigEndian.PutUint64(b[8:], e.ToID)
	return append(b, e.Kind...)
}

func depthBytes(d int64) []byte {
	return idBytes(uint64(d))
}

// EntitiesByType implements collect.EntityStore.
func (s *Store) EntitiesByType(ctx context.Context, t collect.EntityType) ([]collect.Entity, error) {
	ents := make([]collect.Entity, 0)
	err := s.Db.View(func(tx *bolt.Tx) error {
		tb := tx.Bucket(entityBucket).Bucket([]byte(t))
		if tb == nil {
			return nil
		}
		return tb.ForEach(func(k, v []byte) error {
			ents = append(ents, collect.Entity{ID: binary.BigEndian.Uint64(k), Name: string(v), Type: t})
			return nil
		})
	})
	return ents, errors.Wrapf(err, "listing %s entities", t)
}

// PutEntities implements collect.EntityWriter. An entity whose type changed
// is removed from its old type.
func (s *Store) PutEntities(ctx context.Context, entities []collect.Entity) error {
	err := s.Db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket(entityBucket)
		types := make([][]byte, 0)
		err := eb.ForEach(func(name, v []byte) error {
			if v == nil {
				types = append(types, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range entities {
			tb, err := eb.CreateBucketIfNotExists([]byte(e.Type))
			if err != nil {
				return errors.Wrapf(err, "adding %s to entity bucket", e.Type)
			}
			key := idBytes(e.ID)
			for _, name := range types {
				if bytes.Equal(name, []byte(e.Type)) {
					continue
				}
				if err := eb.Bucket(name).Delete(key); err != nil {
					return errors.Wrapf(err, "removing stale %v", e)
				}
			}
			if err := tb.Put(key, []byte(e.Name)); err != nil {
				return errors.Wrapf(err, "putting %v", e)
			}
		}
		return nil
	})
	return errors.Wrap(err, "putting entities")
}

// UpsertEdges implements collect.EdgeStore. The whole batch is written in a
// single transaction.
func (s *Store) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	var n int
	err := s.Db.Update(func(tx *bolt.Tx) error {
		n = 0
		b := tx.Bucket(edgeBucket)
		for _, e := range edges {
			k, v := edgeKey(e), depthBytes(e.Depth)
			if old := b.Get(k); bytes.Equal(old, v) {
				continue
			}
			if err := b.Put(k, v); err != nil {
				return errors.Wrapf(err, "putting edge %d->%d", e.FromID, e.ToID)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "upserting edges")
	}
	return n, nil
}

// CountEdges implements collect.EdgeCounter.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	var n int
	err := s.Db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(edgeBucket).Stats().KeyN
		return nil
	})
	return n, errors.Wrap(err, "counting edges")
}

// Edges calls fn with every stored edge in key order, stopping at the first
// error.
func (s *Store) Edges(ctx context.Context, fn func(collect.Edge) error) error {
	return s.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(edgeBucket).ForEach(func(k, v []byte) error {
			return fn(collect.Edge{
				FromID: binary.BigEndian.Uint64(k),
				ToID:   binary.BigEndian.Uint64(k[8:]),
				Kind:   collect.EdgeKind(k[16:]),
				Depth:  int64(binary.BigEndian.Uint64(v)),
			})
		})
	})
}
