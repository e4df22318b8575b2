// Package progress defines the per-player economy state.
// This package is PURE and must NOT import any infrastructure packages.
package progress

import (
	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
)

// CardState is the owned level of one catalog card.
type CardState struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// Progress is the full persisted state of one player's economy.
type Progress struct {
	CurrentPoints         int64       `json:"current_points"`
	LifetimePoints        int64       `json:"lifetime_points"`
	Energy                int64       `json:"energy"`
	TapUpgradeLevel       int         `json:"tap_upgrade_level"`
	EnergyCapUpgradeLevel int         `json:"energy_cap_upgrade_level"`
	MiningCards           []CardState `json:"mining_cards"`
	LastPersistedAtMs     int64       `json:"last_persisted_at_ms"`
	PendingOfflineReward  int64       `json:"pending_offline_reward"`
}

// Fresh is the state of a player with no save: full energy, no points, every
// catalog card at level 0.
func Fresh(catalog *card.Catalog, r rules.Rules) Progress {
	p := Progress{Energy: r.MaxEnergy(0)}
	p.MiningCards = make([]CardState, 0, catalog.Len())
	for _, c := range catalog.Cards() {
		p.MiningCards = append(p.MiningCards, CardState{ID: c.ID})
	}
	return p
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	out := p
	out.MiningCards = make([]CardState, len(p.MiningCards))
	copy(out.MiningCards, p.MiningCards)
	return out
}

// CardLevel returns the level of a card, 0 when not owned.
func (p Progress) CardLevel(id string) int {
	for _, c := range p.MiningCards {
		if c.ID == id {
			return c.Level
		}
	}
	return 0
}

// IncomePerHour sums the idle income of every owned card.
func (p Progress) IncomePerHour(catalog *card.Catalog) int64 {
	var total int64
	for _, c := range p.MiningCards {
		def, ok := catalog.Lookup(c.ID)
		if !ok {
			continue
		}
		total = rules.SatAdd(total, rules.CardIncome(def.BaseProfitPerHour, c.Level))
	}
	return total
}

// Normalize brings a restored state back inside its invariants: cards follow
// catalog order (unknown ids dropped, first duplicate wins, missing ids at
// level 0), levels and counters are non-negative, lifetime is at least the
// current balance, energy sits in [0, MaxEnergy].
func (p *Progress) Normalize(catalog *card.Catalog, r rules.Rules) {
	levels := make(map[string]int, len(p.MiningCards))
	for _, c := range p.MiningCards {
		if _, seen := levels[c.ID]; seen {
			continue
		}
		if _, ok := catalog.Lookup(c.ID); !ok {
			continue
		}
		levels[c.ID] = max(c.Level, 0)
	}
	cards := make([]CardState, 0, catalog.Len())
	for _, def := range catalog.Cards() {
		cards = append(cards, CardState{ID: def.ID, Level: levels[def.ID]})
	}
	p.MiningCards = cards

	p.TapUpgradeLevel = max(p.TapUpgradeLevel, 0)
	p.EnergyCapUpgradeLevel = max(p.EnergyCapUpgradeLevel, 0)
	p.CurrentPoints = max(p.CurrentPoints, 0)
	p.LifetimePoints = max(p.LifetimePoints, p.CurrentPoints)
	p.PendingOfflineReward = max(p.PendingOfflineReward, 0)
	p.Energy = min(max(p.Energy, 0), r.MaxEnergy(p.EnergyCapUpgradeLevel))
}
