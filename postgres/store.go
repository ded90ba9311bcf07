// Package postgres is a collect.Store backed by PostgreSQL.
package postgres

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id   BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entities_type_id ON entities (type, id);
CREATE TABLE IF NOT EXISTS edges (
	from_id    BIGINT NOT NULL,
	to_id      BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	depth      BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (from_id, to_id, kind)
);`

const upsertEdge = `
INSERT INTO edges (from_id, to_id, kind, depth) VALUES ($1, $2, $3, $4)
ON CONFLICT (from_id, to_id, kind) DO UPDATE
SET depth = EXCLUDED.depth, updated_at = now()
WHERE edges.depth IS DISTINCT FROM EXCLUDED.depth`

const upsertEntity = `
INSERT INTO entities (id, name, type) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`

// Store is a collect.Store over a pgx connection pool. Ids are stored as
// BIGINT, so ids above math.MaxInt64 are rejected as permanent errors.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and creates the tables if they
// don't exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "creating pool")
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "applying schema")
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify marks integrity violations, which fail identically on every
// attempt, as permanent.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return collect.Permanent(err)
	}
	return err
}

func bigint(id uint64) (int64, error) {
	if id > math.MaxInt64 {
		return 0, collect.Permanent(errors.Errorf("id %d does not fit in a BIGINT", id))
	}
	return int64(id), nil
}

// EntitiesByType implements collect.EntityStore.
func (s *Store) EntitiesByType(ctx context.Context, t collect.EntityType) ([]collect.Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM entities WHERE type = $1 ORDER BY id`, string(t))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s entities", t)
	}
	ents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (collect.Entity, error) {
		var id int64
		e := collect.Entity{Type: t}
		err := row.Scan(&id, &e.Name)
		e.ID = uint64(id)
		return e, err
	})
	return ents, errors.Wrapf(err, "scanning %s entities", t)
}

// PutEntities implements collect.EntityWriter.
func (s *Store) PutEntities(ctx context.Context, entities []collect.Entity) error {
	batch := &pgx.Batch{}
	for _, e := range entities {
		id, err := bigint(e.ID)
		if err != nil {
			return errors.Wrapf(err, "putting entity %s", e.Name)
		}
		batch.Queue(upsertEntity, id, e.Name, string(e.Type))
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return errors.Wrap(classify(err), "putting entities")
}

// UpsertEdges implements collect.EdgeStore. The batch runs in one
// transaction; an edge whose depth is unchanged is not rewritten and is not
// counted.
func (s *Store) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	batch := &pgx.Batch{}
	for i, e := range edges {
		from, err := bigint(e.FromID)
		if err != nil {
			return 0, errors.Wrapf(err, "upserting edge %d", i)
		}
		to, err := bigint(e.ToID)
		if err != nil {
			return 0, errors.Wrapf(err, "upserting edge %d", i)
		}
		batch.Queue(upsertEdge, from, to, string(e.Kind), e.Depth)
	}
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n = 0
		br := tx.SendBatch(ctx, batch)
		for i := range edges {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return errors.Wrapf(err, "upserting edge %d", i)
			}
			n += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, errors.Wrap(classify(err), "upserting edges")
	}
	return int(n), nil
}

// CountEdges implements collect.EdgeCounter.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM edges`).Scan(&n)
	return int(n), errors.Wrap(err, "counting edges")
}
