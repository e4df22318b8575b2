package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
)

// SQLiteKV implements KeyValueStore on the kv table.
type SQLiteKV struct {
	db *sqlx.DB
}

func NewSQLiteKV(db *sqlx.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

func (r *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteKV) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteKV) List(ctx context.Context, prefix string) ([]Record, error) {
	var records []Record
	// LIKE folds ASCII case; compare the leading characters instead
	query := `SELECT key, value, updated_at FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key ASC`
	if err := r.db.SelectContext(ctx, &records, query, utf8.RuneCountInString(prefix), prefix); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return records, nil
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sqlx.DB
}

func NewSQLiteEventRepository(db *sqlx.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, payload)
		VALUES (:id, :timestamp, :event_type, :actor_id, :payload)
	`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, where string, arg any, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, timestamp, event_type, actor_id, payload FROM events
		WHERE ` + where + ` = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	var events []StoredEvent
	if err := r.db.SelectContext(ctx, &events, query, arg, limit); err != nil {
		return nil, err
	}
	// newest N, returned oldest first
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (r *SQLiteEventRepository) GetByActorID(ctx context.Context, actorID string, limit int) ([]StoredEvent, error) {
	return r.getMany(ctx, "actor_id", actorID, limit)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error) {
	return r.getMany(ctx, "event_type", eventType, limit)
}

// ---------------------------------------------------------
// SQLiteLeaderboard
// ---------------------------------------------------------

// SQLiteLeaderboard implements leaderboard.Store on the local database, used
// when no remote Postgres is configured.
type SQLiteLeaderboard struct {
	db *sqlx.DB
}

func NewSQLiteLeaderboard(db *sqlx.DB) *SQLiteLeaderboard {
	return &SQLiteLeaderboard{db: db}
}

func (r *SQLiteLeaderboard) Upsert(ctx context.Context, e leaderboard.Entry) error {
	query := `
		INSERT INTO leaderboard (identity, username, lifetime_points, updated_at)
		VALUES (:identity, :username, :lifetime_points, :updated_at)
		ON CONFLICT(identity) DO UPDATE SET
			username=excluded.username,
			lifetime_points=excluded.lifetime_points,
			updated_at=excluded.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to upsert leaderboard row: %w", err)
	}
	return nil
}

func (r *SQLiteLeaderboard) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []leaderboard.Entry
	query := `SELECT identity, username, lifetime_points, updated_at FROM leaderboard
		ORDER BY lifetime_points DESC, identity ASC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return rows, nil
}
