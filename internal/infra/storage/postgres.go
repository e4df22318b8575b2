// Package storage - postgres.go
// Remote leaderboard mirror on PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
)

// PostgresLeaderboard implements leaderboard.Store using PostgreSQL.
type PostgresLeaderboard struct {
	pool *pgxpool.Pool
}

// OpenPostgresLeaderboard connects a pool to dsn and ensures the table exists.
func OpenPostgresLeaderboard(ctx context.Context, dsn string, maxConns int32) (*PostgresLeaderboard, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	r := NewPostgresLeaderboard(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresLeaderboard wraps an existing pool.
func NewPostgresLeaderboard(pool *pgxpool.Pool) *PostgresLeaderboard {
	return &PostgresLeaderboard{pool: pool}
}

// EnsureSchema creates the leaderboard table if needed.
func (r *PostgresLeaderboard) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS leaderboard (
			identity TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			lifetime_points BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create leaderboard table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_leaderboard_points ON leaderboard (lifetime_points DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create leaderboard index: %w", err)
	}
	return nil
}

// Upsert writes one row. The remote table is a mirror: the newest push wins.
func (r *PostgresLeaderboard) Upsert(ctx context.Context, e leaderboard.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO leaderboard (identity, username, lifetime_points, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			username = EXCLUDED.username,
			lifetime_points = EXCLUDED.lifetime_points,
			updated_at = EXCLUDED.updated_at
	`, e.Identity, e.Username, e.LifetimePoints, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard row: %w", err)
	}
	return nil
}

// Top returns the highest lifetime totals.
func (r *PostgresLeaderboard) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT identity, username, lifetime_points, updated_at
		FROM leaderboard
		ORDER BY lifetime_points DESC, identity ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[leaderboard.Entry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
	}
	return entries, nil
}

// Get returns one row or ErrNotFound.
func (r *PostgresLeaderboard) Get(ctx context.Context, identity string) (leaderboard.Entry, error) {
	var e leaderboard.Entry
	err := r.pool.QueryRow(ctx, `
		SELECT identity, username, lifetime_points, updated_at FROM leaderboard WHERE identity = $1
	`, identity).Scan(&e.Identity, &e.Username, &e.LifetimePoints, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("failed to read leaderboard row: %w", err)
	}
	return e, nil
}

// Close releases the pool.
func (r *PostgresLeaderboard) Close() {
	r.pool.Close()
}
