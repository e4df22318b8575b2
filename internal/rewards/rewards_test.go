package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/clock"
)

type grants struct {
	mu      sync.Mutex
	reasons []string
	total   int64
	refuse  bool
}

func (g *grants) GrantFor(amount int64, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refuse {
		return false
	}
	g.reasons = append(g.reasons, reason)
	g.total += amount
	return true
}

func (g *grants) sum() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.VerifyDelay = 20 * time.Millisecond
	return cfg
}

func newQuests(t *testing.T, kv storage.KeyValueStore, g Granter, clk clock.Clock) *Quests {
	t.Helper()
	q := NewQuests("p1", fastConfig(), kv, g, clk, nil)
	require.NoError(t, q.Load(context.Background()))
	t.Cleanup(q.Close)
	return q
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.DailyReward = -1
	assert.Error(t, bad.Validate())

	dup := DefaultConfig()
	dup.Platforms = []string{"twitter", "twitter"}
	assert.Error(t, dup.Validate())
}

func TestDailyClaimCooldown(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(epoch)
	g := &grants{}
	q := newQuests(t, storage.NewMemoryKV(), g, clk)

	amount, err := q.ClaimDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	amount, err = q.ClaimDaily(ctx)
	require.NoError(t, err)
	assert.Zero(t, amount)
	assert.False(t, q.Status().DailyAvailable)

	// exactly one cooldown later is still too early
	clk.Advance(24 * time.Hour)
	amount, _ = q.ClaimDaily(ctx)
	assert.Zero(t, amount)

	clk.Advance(time.Millisecond)
	amount, _ = q.ClaimDaily(ctx)
	assert.Equal(t, int64(1000), amount)
	assert.Equal(t, int64(2000), g.sum())
}

func TestDailyClaimRefusedGrantKeepsCooldown(t *testing.T) {
	g := &grants{refuse: true}
	q := newQuests(t, storage.NewMemoryKV(), g, clock.NewFakeClock(epoch))

	amount, err := q.ClaimDaily(context.Background())
	require.NoError(t, err)
	assert.Zero(t, amount)
	assert.True(t, q.Status().DailyAvailable)
}

func TestSocialFollowFlow(t *testing.T) {
	ctx := context.Background()
	g := &grants{}
	q := newQuests(t, storage.NewMemoryKV(), g, clock.NewFakeClock(epoch))

	ok, err := q.VerifyFollow("twitter")
	require.NoError(t, err)
	assert.False(t, ok, "verify before follow")

	ok, err = q.StartFollow(ctx, "twitter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, FollowVerifying, q.Status().Social["twitter"])

	ok, _ = q.VerifyFollow("twitter")
	assert.True(t, ok)
	ok, _ = q.VerifyFollow("twitter")
	assert.False(t, ok, "check already pending")
	assert.Equal(t, []string{"twitter"}, q.Status().Checking)

	require.Eventually(t, func() bool {
		return q.Status().Social["twitter"] == FollowClaimed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(5000), g.sum())
	assert.Equal(t, FollowInitial, q.Status().Social["farcaster"])

	ok, _ = q.StartFollow(ctx, "twitter")
	assert.False(t, ok, "claimed quests stay claimed")
}

func TestUnknownPlatform(t *testing.T) {
	q := newQuests(t, storage.NewMemoryKV(), &grants{}, clock.NewFakeClock(epoch))
	_, err := q.StartFollow(context.Background(), "myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	_, err = q.VerifyFollow("myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestCloseCancelsPendingVerification(t *testing.T) {
	g := &grants{}
	cfg := DefaultConfig()
	cfg.VerifyDelay = 50 * time.Millisecond
	q := NewQuests("p1", cfg, storage.NewMemoryKV(), g, clock.NewFakeClock(epoch), nil)

	_, err := q.StartFollow(context.Background(), "farcaster")
	require.NoError(t, err)
	ok, _ := q.VerifyFollow("farcaster")
	require.True(t, ok)
	q.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, g.sum())
	assert.Equal(t, FollowVerifying, q.Status().Social["farcaster"])
}

func TestReferralOnce(t *testing.T) {
	ctx := context.Background()
	g := &grants{}
	q := newQuests(t, storage.NewMemoryKV(), g, clock.NewFakeClock(epoch))

	amount, _ := q.ClaimReferral(ctx, "")
	assert.Zero(t, amount)
	amount, _ = q.ClaimReferral(ctx, "p1")
	assert.Zero(t, amount, "self referral")

	amount, err := q.ClaimReferral(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), amount)

	amount, _ = q.ClaimReferral(ctx, "someone_else")
	assert.Zero(t, amount)
	assert.True(t, q.Status().ReferralClaimed)
}

func TestStatePersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	clk := clock.NewFakeClock(epoch)

	q := newQuests(t, kv, &grants{}, clk)
	_, err := q.ClaimDaily(ctx)
	require.NoError(t, err)
	_, err = q.StartFollow(ctx, "farcaster")
	require.NoError(t, err)
	_, err = q.ClaimReferral(ctx, "friend")
	require.NoError(t, err)

	again := newQuests(t, kv, &grants{}, clk)
	s := again.Status()
	assert.False(t, s.DailyAvailable)
	assert.Equal(t, FollowVerifying, s.Social["farcaster"])
	assert.True(t, s.ReferralClaimed)
}

func TestStoreFailureSurfaces(t *testing.T) {
	kv := storage.NewMemoryKV()
	q := newQuests(t, kv, &grants{}, clock.NewFakeClock(epoch))
	kv.FailWith(errors.New("disk full"))

	amount, err := q.ClaimDaily(context.Background())
	assert.Equal(t, int64(1000), amount)
	assert.Error(t, err)
}

func TestRewardsCreditEngine(t *testing.T) {
	catalog := card.Default()
	el := events.NewEventLog(nil)
	e := engine.NewEngine("p1", progress.Fresh(catalog, rules.Default()), catalog, rules.Default(), el, nil)
	require.NoError(t, e.ReconcileOfflineTime(0))

	q := newQuests(t, storage.NewMemoryKV(), e, clock.NewFakeClock(epoch))
	q.SetEventLog(el)

	var seen []Status
	q.OnChange(func(s Status) { seen = append(seen, s) })

	_, err := q.ClaimDaily(context.Background())
	require.NoError(t, err)

	s := e.Snapshot()
	assert.Equal(t, int64(1000), s.CurrentPoints)
	assert.Equal(t, int64(1000), s.LifetimePoints)
	assert.Len(t, el.GetByType(events.EventTypeDailyClaimed), 1)
	assert.Len(t, el.GetByType(events.EventTypeGrant), 1)
	require.Len(t, seen, 1)
	assert.False(t, seen[0].DailyAvailable)
}
