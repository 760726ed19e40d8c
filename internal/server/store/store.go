// Package store implements the keyed table store backing the sync
// engine: an ordered key-value store partitioned into named tables on
// a single SQLite relation, plus monotonic ID allocation and scoped
// per-key locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	tbl   TEXT NOT NULL,
	key   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (tbl, key)
);

CREATE TABLE IF NOT EXISTS ids (
	kind TEXT PRIMARY KEY,
	next INTEGER NOT NULL
);
`

// Store is safe for concurrent use. All persisted server state lives
// here; services mutate it one logical operation at a time.
type Store struct {
	db    *sqlx.DB
	locks *keyLocks
}

func New(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{
		db:    db,
		locks: newKeyLocks(),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, with ok=false if the key is absent.
func (s *Store) Get(ctx context.Context, tbl Table, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv WHERE tbl = ? AND key = ?`, tbl, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s/%s: %w", tbl, key, err)
	}
	return value, true, nil
}

// Put writes value, overwriting any existing value for key.
func (s *Store) Put(ctx context.Context, tbl Table, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (tbl, key, value) VALUES (?, ?, ?)`,
		tbl, key, value)
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", tbl, key, err)
	}
	return nil
}

// PutOnce writes value only if the key is absent. Content-addressed
// tables rely on this for idempotent writes.
func (s *Store) PutOnce(ctx context.Context, tbl Table, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv (tbl, key, value) VALUES (?, ?, ?)`,
		tbl, key, value)
	if err != nil {
		return fmt.Errorf("store: put-once %s/%s: %w", tbl, key, err)
	}
	return nil
}

// Update appends value to the existing value with a comma separator,
// creating the key if absent. The upsert runs as one statement, so
// concurrent appends to the same key never lose updates.
func (s *Store) Update(ctx context.Context, tbl Table, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (tbl, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (tbl, key) DO UPDATE SET
		   value = CASE WHEN length(kv.value) = 0 THEN excluded.value
		                ELSE kv.value || ',' || excluded.value END`,
		tbl, key, value)
	if err != nil {
		return fmt.Errorf("store: update %s/%s: %w", tbl, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tbl Table, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE tbl = ? AND key = ?`, tbl, key)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", tbl, key, err)
	}
	return nil
}

// First returns the lexicographically smallest key in tbl.
func (s *Store) First(ctx context.Context, tbl Table) (string, bool, error) {
	var key string
	err := s.db.GetContext(ctx, &key,
		`SELECT key FROM kv WHERE tbl = ? ORDER BY key ASC LIMIT 1`, tbl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: first %s: %w", tbl, err)
	}
	return key, true, nil
}

func (s *Store) Count(ctx context.Context, tbl Table) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM kv WHERE tbl = ?`, tbl)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", tbl, err)
	}
	return n, nil
}

type kvRow struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

// Iterate yields all entries of tbl in ascending key order.
func (s *Store) Iterate(ctx context.Context, tbl Table) iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		rows, err := s.db.QueryxContext(ctx,
			`SELECT key, value FROM kv WHERE tbl = ? ORDER BY key ASC`, tbl)
		if err != nil {
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row kvRow
			if err := rows.StructScan(&row); err != nil {
				return
			}
			if !yield(row.Key, row.Value) {
				return
			}
		}
	}
}

// NewID returns the next monotonically increasing ID for kind,
// starting at 1. The counter bump is a single atomic upsert.
func (s *Store) NewID(ctx context.Context, kind string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO ids (kind, next) VALUES (?, 1)
		 ON CONFLICT (kind) DO UPDATE SET next = next + 1
		 RETURNING next`, kind)
	if err != nil {
		return 0, fmt.Errorf("store: new id %s: %w", kind, err)
	}
	return id, nil
}
