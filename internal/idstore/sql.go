package idstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and driver-specific setup.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS resource_ids (
  name TEXT PRIMARY KEY,
  resource_id TEXT NOT NULL,
  updated_at_ms BIGINT NOT NULL
)`

// SQLStore keeps entries in a single table through database/sql. The same
// statements serve sqlite and postgres; only placeholders differ.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an already opened database. Call Init before use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLite opens (creating if needed) a sqlite file and its table.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent upserts
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	s := NewSQLStore(db, DialectSQLite)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects through lib/pq and creates the table.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := NewSQLStore(db, DialectPostgres)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create resource_ids table: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT resource_id FROM resource_ids WHERE name = ?`), name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get id for %s: %w", name, err)
	}
	return id, nil
}

func (s *SQLStore) Set(ctx context.Context, name, id string) error {
	if err := validatePair(name, id); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO resource_ids (name, resource_id, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
  resource_id = excluded.resource_id,
  updated_at_ms = excluded.updated_at_ms`),
		name, id, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set id for %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM resource_ids WHERE name = ?`), name); err != nil {
		return fmt.Errorf("failed to delete id for %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, resource_id, updated_at_ms FROM resource_ids ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.Name, &e.ID, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan id row: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
