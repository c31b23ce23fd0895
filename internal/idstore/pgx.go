package idstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolOptions struct {
	MaxConns int
	MinConns int
}

// PgxStore keeps entries in postgres through a pgx connection pool.
type PgxStore struct {
	pool *pgxpool.Pool
}

func OpenPgx(ctx context.Context, dsn string, opts PoolOptions) (*PgxStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("STORE_DSN is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	// Fail fast
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create resource_ids table: %w", err)
	}

	return &PgxStore{pool: pool}, nil
}

func (s *PgxStore) Get(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	var id string
	err := s.pool.QueryRow(ctx, `SELECT resource_id FROM resource_ids WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get id for %s: %w", name, err)
	}
	return id, nil
}

func (s *PgxStore) Set(ctx context.Context, name, id string) error {
	if err := validatePair(name, id); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO resource_ids (name, resource_id, updated_at_ms)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
  resource_id = EXCLUDED.resource_id,
  updated_at_ms = EXCLUDED.updated_at_ms`,
		name, id, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set id for %s: %w", name, err)
	}
	return nil
}

func (s *PgxStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM resource_ids WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete id for %s: %w", name, err)
	}
	return nil
}

func (s *PgxStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, resource_id, updated_at_ms FROM resource_ids ORDER BY name ASC`)
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
	return out, rows.Err()
}

func (s *PgxStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}
