// Package leaderboard mirrors players' lifetime totals to a shared ranking
// store and serves the ranked view back.
package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one player's row on the board.
type Entry struct {
	Identity       string    `json:"identity" db:"identity"`
	Username       string    `json:"username" db:"username"`
	LifetimePoints int64     `json:"lifetime_points" db:"lifetime_points"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Store is the remote ranking backend.
type Store interface {
	// Upsert writes the row for e.Identity, replacing any previous one.
	Upsert(ctx context.Context, e Entry) error
	// Top returns up to limit rows by lifetime points, highest first.
	Top(ctx context.Context, limit int) ([]Entry, error)
}

// SortEntries orders rows by lifetime points descending, ties by identity.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LifetimePoints != entries[j].LifetimePoints {
			return entries[i].LifetimePoints > entries[j].LifetimePoints
		}
		return entries[i].Identity < entries[j].Identity
	})
}

// MemoryStore is an in-process Store for tests and single-node dev runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Entry
	err  error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Entry)}
}

// FailWith makes every later call return err (nil clears it).
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[e.Identity] = e
	return nil
}

func (m *MemoryStore) Top(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Entry, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	SortEntries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns one row.
func (m *MemoryStore) Get(identity string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rows[identity]
	return e, ok
}
