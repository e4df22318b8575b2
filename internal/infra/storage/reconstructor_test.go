package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, repo EventRepository) {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []StoredEvent{
		{ID: "1", EventType: "OFFLINE_RECONCILED", Payload: `{"elapsed_seconds":60,"reward":0}`},
		{ID: "2", EventType: "TAP", Payload: `{"gained":1}`},
		{ID: "3", EventType: "TAP", Payload: `{"gained":1}`},
		{ID: "4", EventType: "TAP", Payload: `{"gained":2}`},
		{ID: "5", EventType: "UPGRADE_PURCHASED", Payload: `{"track":"tap","level":1,"cost":100}`},
		{ID: "6", EventType: "GRANT", Payload: `{"amount":1000,"reason":"daily"}`},
		{ID: "7", EventType: "TAP", Payload: `{"gained":2}`},
		{ID: "8", EventType: "OFFLINE_CLAIMED", Payload: `{"amount":300}`},
	}
	for i, r := range rows {
		r.ActorID = "p1"
		r.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Append(context.Background(), r))
	}
}

func TestRebuildLedger(t *testing.T) {
	db, err := InitSQLite(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := NewSQLiteEventRepository(db)
	seedEvents(t, repo)

	l, err := NewReconstructor(repo).RebuildLedger(context.Background(), "p1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), l.Taps)
	assert.Equal(t, int64(6), l.Tapped)
	assert.Equal(t, int64(1000), l.Granted)
	assert.Equal(t, int64(300), l.OfflineClaimed)
	assert.Equal(t, int64(100), l.Spent)
	assert.Equal(t, int64(1306), l.Earned())
}

func TestGenerateRecapCollapsesTaps(t *testing.T) {
	db, err := InitSQLite(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := NewSQLiteEventRepository(db)
	seedEvents(t, repo)

	recap, err := NewReconstructor(repo).GenerateRecap(context.Background(), "p1", 100)
	require.NoError(t, err)
	require.Len(t, recap, 6)
	assert.Equal(t, "away for 60s", recap[0].Summary)
	assert.Equal(t, "3 taps", recap[1].Summary)
	assert.Equal(t, int64(4), recap[1].Delta)
	assert.Equal(t, "tap upgrade to level 1", recap[2].Summary)
	assert.Equal(t, int64(-100), recap[2].Delta)
	assert.Equal(t, "daily reward", recap[3].Summary)
	assert.Equal(t, "1 tap", recap[4].Summary)
	assert.Equal(t, int64(300), recap[5].Delta)
}
