// Package storage provides the persistence layer for the game server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or row does not exist.
var ErrNotFound = errors.New("not found")

// Record is one key/value pair.
type Record struct {
	Key       string    `json:"key" db:"key"`
	Value     []byte    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// KeyValueStore is the durable slot store behind save games, profiles and
// quest bookkeeping.
type KeyValueStore interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every record whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Record, error)
}

// StoredEvent mirrors the audit event structure for persistence.
// The events package does NOT import this; the adapter in cmd translates.
type StoredEvent struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	EventType string    `json:"event_type" db:"event_type"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	Payload   string    `json:"payload" db:"payload"` // JSON object
}

// EventRepository defines the interface for audit event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetByActorID retrieves the most recent events of a player, oldest first.
	GetByActorID(ctx context.Context, actorID string, limit int) ([]StoredEvent, error)

	// GetByEventType retrieves the most recent events of one type, oldest first.
	GetByEventType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error)
}
