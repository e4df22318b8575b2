package network

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

// Dispatcher routes validated intents to a session. It is shared by the
// WebSocket clients and the HTTP API.
type Dispatcher struct {
	logger *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{logger: log}
}

// Dispatch applies in to s and reports the outcome with the resulting state.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, in Intent) Result {
	res := Result{RequestID: in.RequestID, Intent: in.Type}
	res.OK, res.Amount, res.Reason = d.apply(ctx, s, in)
	if !res.OK {
		metrics.Get().RecordIntentRejected()
	}
	res.State = s.State()
	return res
}

func (d *Dispatcher) apply(ctx context.Context, s *session.Session, in Intent) (bool, int64, string) {
	eng := s.Engine()
	quests := s.Quests()

	switch in.Type {
	case IntentTap:
		r := eng.Tap()
		if !r.Accepted {
			return false, 0, ReasonInsufficientEnergy
		}
		return true, r.Gained, ""

	case IntentBuyUpgrade:
		var p upgradePayload
		if !decode(in.Payload, &p) {
			return false, 0, ReasonInvalid
		}
		track := engine.Track(p.Track)
		if !track.Valid() {
			return false, 0, ReasonUnknownTrack
		}
		if !eng.BuyUpgrade(track) {
			return false, 0, ReasonInsufficientPoints
		}
		return true, 0, ""

	case IntentBuyCard:
		var p cardPayload
		if !decode(in.Payload, &p) {
			return false, 0, ReasonInvalid
		}
		if _, ok := eng.Catalog().Lookup(p.CardID); !ok {
			return false, 0, ReasonUnknownCard
		}
		if !eng.BuyCard(p.CardID) {
			return false, 0, ReasonInsufficientPoints
		}
		return true, 0, ""

	case IntentClaimOffline:
		amount := eng.ClaimOfflineReward()
		if amount == 0 {
			return false, 0, ReasonNothingToClaim
		}
		return true, amount, ""

	case IntentClaimDaily:
		amount, err := quests.ClaimDaily(ctx)
		d.warnPersist(s, err)
		if amount == 0 {
			return false, 0, ReasonCooldown
		}
		return true, amount, ""

	case IntentStartFollow:
		var p platformPayload
		if !decode(in.Payload, &p) {
			return false, 0, ReasonInvalid
		}
		ok, err := quests.StartFollow(ctx, p.Platform)
		if errors.Is(err, rewards.ErrUnknownPlatform) {
			return false, 0, ReasonUnknownPlatform
		}
		d.warnPersist(s, err)
		if !ok {
			return false, 0, ReasonAlreadyClaimed
		}
		return true, 0, ""

	case IntentVerifyFollow:
		var p platformPayload
		if !decode(in.Payload, &p) {
			return false, 0, ReasonInvalid
		}
		ok, err := quests.VerifyFollow(p.Platform)
		if errors.Is(err, rewards.ErrUnknownPlatform) {
			return false, 0, ReasonUnknownPlatform
		}
		if !ok {
			return false, 0, ReasonNotVerifying
		}
		return true, 0, ""

	case IntentClaimReferral:
		var p referralPayload
		if !decode(in.Payload, &p) {
			return false, 0, ReasonInvalid
		}
		amount, err := quests.ClaimReferral(ctx, p.ReferrerID)
		d.warnPersist(s, err)
		if amount == 0 {
			return false, 0, ReasonNotEligible
		}
		return true, amount, ""

	case IntentSync:
		s.SyncNow()
		return true, 0, ""
	}
	return false, 0, ReasonUnknownIntent
}

// warnPersist logs quest bookkeeping that was applied but not stored.
func (d *Dispatcher) warnPersist(s *session.Session, err error) {
	if err != nil {
		d.logger.Warnf("quest state for %s not persisted: %v", s.PlayerID(), err)
	}
}

func decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
