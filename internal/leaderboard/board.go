package leaderboard

import (
	"context"
	"fmt"
)

// TopCache caches Top(limit) pages.
type TopCache interface {
	Get(limit int) ([]Entry, bool)
	Add(limit int, rows []Entry)
	Purge()
}

// Ranked is an entry with its 1-based position.
type Ranked struct {
	Rank int `json:"rank"`
	Entry
}

// Board is the read side of the leaderboard.
type Board struct {
	store        Store
	cache        TopCache
	defaultLimit int
}

// NewBoard wraps a store. cache may be nil.
func NewBoard(store Store, cache TopCache, defaultLimit int) *Board {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	return &Board{store: store, cache: cache, defaultLimit: defaultLimit}
}

// Top returns the ranked page, highest lifetime total first.
func (b *Board) Top(ctx context.Context, limit int) ([]Ranked, error) {
	if limit <= 0 || limit > b.defaultLimit {
		limit = b.defaultLimit
	}
	if b.cache != nil {
		if rows, ok := b.cache.Get(limit); ok {
			return rank(rows), nil
		}
	}
	rows, err := b.store.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}
	SortEntries(rows)
	if b.cache != nil {
		b.cache.Add(limit, rows)
	}
	return rank(rows), nil
}

// Invalidate drops cached pages.
func (b *Board) Invalidate() {
	if b.cache != nil {
		b.cache.Purge()
	}
}

func rank(rows []Entry) []Ranked {
	out := make([]Ranked, len(rows))
	for i, e := range rows {
		out[i] = Ranked{Rank: i + 1, Entry: e}
	}
	return out
}
