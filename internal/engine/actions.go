package engine

import (
	"github.com/MRamiBalles/Basecaster/internal/events"
)

// Track names one of the two upgrade tracks.
type Track string

const (
	TrackTap       Track = "tap"
	TrackEnergyCap Track = "energy_cap"
)

// Valid reports whether t is a known track.
func (t Track) Valid() bool {
	return t == TrackTap || t == TrackEnergyCap
}

// TapResult is the outcome of one tap.
type TapResult struct {
	Accepted bool  `json:"accepted"`
	Gained   int64 `json:"gained"`
	Energy   int64 `json:"energy"`
}

// Tap converts TapValue energy into TapValue points. A tap with less energy
// than TapValue changes nothing.
func (e *Engine) Tap() TapResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reconciled {
		e.metrics.RecordTap(false, 0)
		return TapResult{Energy: e.state.Energy}
	}
	value := e.rules.TapValue(e.state.TapUpgradeLevel)
	if e.state.Energy < value {
		e.metrics.RecordTap(false, 0)
		return TapResult{Energy: e.state.Energy}
	}

	e.state.Energy -= value
	e.credit(value)
	e.metrics.RecordTap(true, value)
	e.commit(events.EventTypeTap, map[string]any{"gained": value, "energy": e.state.Energy})
	return TapResult{Accepted: true, Gained: value, Energy: e.state.Energy}
}

// BuyUpgrade levels one upgrade track if the player can afford it.
func (e *Engine) BuyUpgrade(track Track) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reconciled || !track.Valid() {
		e.metrics.RecordUpgrade(false)
		return false
	}

	level := &e.state.TapUpgradeLevel
	if track == TrackEnergyCap {
		level = &e.state.EnergyCapUpgradeLevel
	}
	cost := e.rules.UpgradeCost(*level)
	if e.state.CurrentPoints < cost {
		e.metrics.RecordUpgrade(false)
		return false
	}

	e.state.CurrentPoints -= cost
	*level++
	e.metrics.RecordUpgrade(true)
	e.commit(events.EventTypeUpgradePurchased, map[string]any{
		"track": string(track),
		"level": *level,
		"cost":  cost,
	})
	return true
}

// BuyCard levels one mining card if it exists and the player can afford it.
func (e *Engine) BuyCard(cardID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.catalog.Lookup(cardID)
	if !e.reconciled || !ok {
		e.metrics.RecordCard(false)
		return false
	}

	idx := -1
	for i := range e.state.MiningCards {
		if e.state.MiningCards[i].ID == cardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Normalize guarantees every catalog card is present
		e.metrics.RecordCard(false)
		return false
	}

	cost := e.rules.CardCost(def.BaseCost, e.state.MiningCards[idx].Level)
	if e.state.CurrentPoints < cost {
		e.metrics.RecordCard(false)
		return false
	}

	e.state.CurrentPoints -= cost
	e.state.MiningCards[idx].Level++
	e.metrics.RecordCard(true)
	e.commit(events.EventTypeCardPurchased, map[string]any{
		"card_id": cardID,
		"level":   e.state.MiningCards[idx].Level,
		"cost":    cost,
	})
	return true
}

// Grant credits points from outside the tap loop (rewards, referrals).
// Negative and zero amounts are ignored.
func (e *Engine) Grant(amount int64) {
	e.GrantFor(amount, "")
}

// GrantFor is Grant with a reason recorded in the audit log.
func (e *Engine) GrantFor(amount int64, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reconciled || amount <= 0 {
		return false
	}
	e.credit(amount)
	e.metrics.RecordGrant(amount)
	payload := map[string]any{"amount": amount}
	if reason != "" {
		payload["reason"] = reason
	}
	e.commit(events.EventTypeGrant, payload)
	return true
}
