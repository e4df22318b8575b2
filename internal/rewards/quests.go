package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/clock"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
)

// QuestPrefix namespaces quest state in the key-value store.
const QuestPrefix = "basecaster_quests/"

// ErrUnknownPlatform is returned for a social platform not in the config.
var ErrUnknownPlatform = errors.New("unknown platform")

// FollowStatus is the social quest state machine.
type FollowStatus string

const (
	FollowInitial   FollowStatus = "initial"
	FollowVerifying FollowStatus = "verifying"
	FollowClaimed   FollowStatus = "claimed"
)

// Granter credits points. It is satisfied by *engine.Engine.
type Granter interface {
	GrantFor(amount int64, reason string) bool
}

// state is the persisted part.
type state struct {
	LastDailyClaimMs int64                   `json:"last_daily_claim_ms"`
	Social           map[string]FollowStatus `json:"social"`
	ReferralClaimed  bool                    `json:"referral_claimed"`
	ReferredBy       string                  `json:"referred_by,omitempty"`
}

// Status is the quest board as a client renders it.
type Status struct {
	DailyReward     int64                   `json:"daily_reward"`
	DailyAvailable  bool                    `json:"daily_available"`
	NextDailyAt     time.Time               `json:"next_daily_at"`
	SocialReward    int64                   `json:"social_reward"`
	Social          map[string]FollowStatus `json:"social"`
	Checking        []string                `json:"checking,omitempty"`
	ReferralBonus   int64                   `json:"referral_bonus"`
	ReferralClaimed bool                    `json:"referral_claimed"`
}

// Quests is one player's quest bookkeeping.
type Quests struct {
	playerID string
	cfg      Config
	kv       storage.KeyValueStore
	granter  Granter
	clock    clock.Clock
	logger   *logger.Logger
	eventLog *events.EventLog

	mu       sync.Mutex
	st       state
	timers   map[string]*time.Timer
	closed   bool
	onChange func(Status)
}

// NewQuests creates the bookkeeping for playerID. Call Load before use.
func NewQuests(playerID string, cfg Config, kv storage.KeyValueStore, granter Granter, clk clock.Clock, log *logger.Logger) *Quests {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Quests{
		playerID: playerID,
		cfg:      cfg,
		kv:       kv,
		granter:  granter,
		clock:    clk,
		logger:   log,
		st:       state{Social: map[string]FollowStatus{}},
		timers:   make(map[string]*time.Timer),
	}
}

// SetEventLog records claims in the audit log.
func (q *Quests) SetEventLog(el *events.EventLog) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eventLog = el
}

// OnChange installs a hook run after every state change, including deferred
// verifications. The hook must not call back into Quests.
func (q *Quests) OnChange(fn func(Status)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// Load reads persisted quest state. A missing record is a fresh board.
func (q *Quests) Load(ctx context.Context) error {
	raw, err := q.kv.Get(ctx, QuestPrefix+q.playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load quests: %w", err)
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		q.logger.Warnf("quest state for %s unreadable, starting fresh: %v", q.playerID, err)
		return nil
	}
	if st.Social == nil {
		st.Social = map[string]FollowStatus{}
	}

	q.mu.Lock()
	q.st = st
	q.mu.Unlock()
	return nil
}

// Status returns the current board.
func (q *Quests) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *Quests) statusLocked() Status {
	now := q.clock.Now()
	next := time.UnixMilli(q.st.LastDailyClaimMs).Add(q.cfg.DailyCooldown)
	s := Status{
		DailyReward:     q.cfg.DailyReward,
		DailyAvailable:  q.dailyAvailable(now),
		NextDailyAt:     next.UTC(),
		SocialReward:    q.cfg.SocialReward,
		Social:          make(map[string]FollowStatus, len(q.cfg.Platforms)),
		ReferralBonus:   q.cfg.ReferralBonus,
		ReferralClaimed: q.st.ReferralClaimed,
	}
	for _, p := range q.cfg.Platforms {
		s.Social[p] = q.followStatus(p)
		if _, ok := q.timers[p]; ok {
			s.Checking = append(s.Checking, p)
		}
	}
	return s
}

func (q *Quests) followStatus(p string) FollowStatus {
	if st, ok := q.st.Social[p]; ok {
		return st
	}
	return FollowInitial
}

// dailyAvailable is strictly more than one cooldown since the last claim.
func (q *Quests) dailyAvailable(now time.Time) bool {
	if q.st.LastDailyClaimMs == 0 {
		return true
	}
	return now.UnixMilli()-q.st.LastDailyClaimMs > q.cfg.DailyCooldown.Milliseconds()
}

// ClaimDaily pays the daily reward if the cooldown has passed. It returns
// the amount granted; zero means the claim was rejected.
func (q *Quests) ClaimDaily(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	if q.closed || !q.dailyAvailable(now) {
		return 0, nil
	}
	if !q.granter.GrantFor(q.cfg.DailyReward, "daily") {
		return 0, nil
	}
	q.st.LastDailyClaimMs = now.UnixMilli()
	q.audit(events.EventTypeDailyClaimed, map[string]any{"amount": q.cfg.DailyReward})
	return q.cfg.DailyReward, q.commitLocked(ctx)
}

// StartFollow marks a platform as followed-but-unverified.
func (q *Quests) StartFollow(ctx context.Context, platform string) (bool, error) {
	if !q.cfg.hasPlatform(platform) {
		return false, ErrUnknownPlatform
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, nil
	}
	switch q.followStatus(platform) {
	case FollowClaimed:
		return false, nil
	case FollowVerifying:
		return true, nil
	}
	q.st.Social[platform] = FollowVerifying
	return true, q.commitLocked(ctx)
}

// VerifyFollow schedules the deferred check for a platform in the verifying
// state. After VerifyDelay the social reward is granted and the quest is
// claimed. Returns false if there is nothing to verify or a check is already
// pending.
func (q *Quests) VerifyFollow(platform string) (bool, error) {
	if !q.cfg.hasPlatform(platform) {
		return false, ErrUnknownPlatform
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.followStatus(platform) != FollowVerifying {
		return false, nil
	}
	if _, pending := q.timers[platform]; pending {
		return false, nil
	}
	q.timers[platform] = time.AfterFunc(q.cfg.VerifyDelay, func() { q.completeFollow(platform) })
	q.notifyLocked()
	return true, nil
}

func (q *Quests) completeFollow(platform string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.timers, platform)
	if q.closed || q.followStatus(platform) != FollowVerifying {
		return
	}
	if !q.granter.GrantFor(q.cfg.SocialReward, "social:"+platform) {
		q.notifyLocked()
		return
	}
	q.st.Social[platform] = FollowClaimed
	q.audit(events.EventTypeSocialClaimed, map[string]any{"platform": platform, "amount": q.cfg.SocialReward})
	if err := q.commitLocked(context.Background()); err != nil {
		q.logger.Errorf("persist quests for %s: %v", q.playerID, err)
	}
}

// ClaimReferral pays the one-time referral bonus for a referrer other than
// the player. Returns the amount granted; zero means rejected.
func (q *Quests) ClaimReferral(ctx context.Context, referrerID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.st.ReferralClaimed || referrerID == "" || referrerID == q.playerID {
		return 0, nil
	}
	if !q.granter.GrantFor(q.cfg.ReferralBonus, "referral") {
		return 0, nil
	}
	q.st.ReferralClaimed = true
	q.st.ReferredBy = referrerID
	q.audit(events.EventTypeReferralClaimed, map[string]any{"referrer_id": referrerID, "amount": q.cfg.ReferralBonus})
	return q.cfg.ReferralBonus, q.commitLocked(ctx)
}

// Close cancels pending verification checks. Later calls are rejected.
func (q *Quests) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for p, t := range q.timers {
		t.Stop()
		delete(q.timers, p)
	}
}

// commitLocked persists the state and notifies the change hook.
func (q *Quests) commitLocked(ctx context.Context) error {
	q.notifyLocked()
	raw, err := json.Marshal(q.st)
	if err != nil {
		return err
	}
	if err := q.kv.Put(ctx, QuestPrefix+q.playerID, raw); err != nil {
		return fmt.Errorf("store quests: %w", err)
	}
	return nil
}

func (q *Quests) notifyLocked() {
	if q.onChange != nil {
		q.onChange(q.statusLocked())
	}
}

func (q *Quests) audit(typ events.EventType, payload map[string]any) {
	if q.eventLog == nil {
		return
	}
	q.eventLog.Append(events.GameEvent{
		Timestamp: q.clock.Now(),
		Type:      typ,
		ActorID:   q.playerID,
		Payload:   payload,
	})
}
