// Package sqlite is a collect.Store in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

const upsertEdge = `
INSERT INTO edges (from_id, to_id, kind, depth) VALUES (?, ?, ?, ?)
ON CONFLICT (from_id, to_id, kind) DO UPDATE SET depth = excluded.depth
WHERE edges.depth IS NOT excluded.depth`

const upsertEntity = `
INSERT INTO entities (id, name, type) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type`

// Store is a collect.Store over database/sql with the sqlite3 driver.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path and applies the
// schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "executing %q", pragma)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EntitiesByType implements collect.EntityStore.
func (s *Store) EntitiesByType(ctx context.Context, t collect.EntityType) ([]collect.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM entities WHERE type = ? ORDER BY id`, string(t))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s entities", t)
	}
	defer rows.Close()
	ents := make([]collect.Entity, 0)
	for rows.Next() {
		var id int64
		e := collect.Entity{Type: t}
		if err := rows.Scan(&id, &e.Name); err != nil {
			return nil, errors.Wrap(err, "scanning entity")
		}
		e.ID = uint64(id)
		ents = append(ents, e)
	}
	return ents, errors.Wrap(rows.Err(), "iterating entities")
}

// PutEntities implements collect.EntityWriter.
func (s *Store) PutEntities(ctx context.Context, entities []collect.Entity) error {
	return s.inTx(ctx, upsertEntity, func(stmt *sql.Stmt) error {
		for _, e := range entities {
			if _, err := stmt.ExecContext(ctx, int64(e.ID), e.Name, string(e.Type)); err != nil {
				return errors.Wrapf(err, "putting %v", e)
			}
		}
		return nil
	})
}

// UpsertEdges implements collect.EdgeStore.
func (s *Store) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	var n int64
	err := s.inTx(ctx, upsertEdge, func(stmt *sql.Stmt) error {
		n = 0
		for _, e := range edges {
			res, err := stmt.ExecContext(ctx, int64(e.FromID), int64(e.ToID), string(e.Kind), e.Depth)
			if err != nil {
				return errors.Wrapf(err, "upserting edge %d->%d", e.FromID, e.ToID)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "getting rows affected")
			}
			n += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// inTx prepares query in a transaction, runs fn with it and commits if fn
// succeeds.
func (s *Store) inTx(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "preparing statement")
	}
	defer stmt.Close()
	if err := fn(stmt); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing")
}

// CountEdges implements collect.EdgeCounter.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM edges`).Scan(&n)
	return n, errors.Wrap(err, "counting edges")
}
