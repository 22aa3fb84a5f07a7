package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv_store (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	id         TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_kv_store_updated_at ON kv_store(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string, dst any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: get %s/%s", namespace, key)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, eris.Wrapf(err, "sqlite: unmarshal %s/%s", namespace, key)
	}
	return true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal %s/%s", namespace, key)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_store (namespace, key, id, value, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, uuid.New().String(), string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put %s/%s", namespace, key)
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	return eris.Wrapf(err, "sqlite: delete %s/%s", namespace, key)
}

func (s *SQLiteStore) List(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM kv_store WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", namespace)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		e := Entry{Namespace: namespace}
		var value string
		if err := rows.Scan(&e.Key, &value, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		e.Value = []byte(value)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate entries")
}
