// Package cache provides in-process caching for quick leaderboard reads.
// The remote store stays the source of truth.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
)

// LeaderboardCache keeps recent Top(limit) results for a short TTL.
type LeaderboardCache struct {
	lru *expirable.LRU[int, []leaderboard.Entry]
}

// NewLeaderboardCache creates a cache holding up to size distinct limits.
func NewLeaderboardCache(size int, ttl time.Duration) *LeaderboardCache {
	if size <= 0 {
		size = 16
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LeaderboardCache{
		lru: expirable.NewLRU[int, []leaderboard.Entry](size, nil, ttl),
	}
}

// Get returns a copy of the cached page for limit.
func (c *LeaderboardCache) Get(limit int) ([]leaderboard.Entry, bool) {
	rows, ok := c.lru.Get(limit)
	if !ok {
		return nil, false
	}
	return append([]leaderboard.Entry(nil), rows...), true
}

// Add caches a page.
func (c *LeaderboardCache) Add(limit int, rows []leaderboard.Entry) {
	c.lru.Add(limit, append([]leaderboard.Entry(nil), rows...))
}

// Purge drops every page, e.g. after a local push.
func (c *LeaderboardCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached pages.
func (c *LeaderboardCache) Len() int {
	return c.lru.Len()
}
