package engine

import (
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
)

// CardView is a card as the client renders it.
type CardView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Level         int    `json:"level"`
	NextCost      int64  `json:"next_cost"`
	ProfitPerHour int64  `json:"profit_per_hour"`
}

// View is the progress plus every derived value a client needs.
type View struct {
	CurrentPoints        int64      `json:"current_points"`
	LifetimePoints       int64      `json:"lifetime_points"`
	Energy               int64      `json:"energy"`
	MaxEnergy            int64      `json:"max_energy"`
	TapValue             int64      `json:"tap_value"`
	IncomePerHour        int64      `json:"income_per_hour"`
	TapUpgradeLevel      int        `json:"tap_upgrade_level"`
	TapUpgradeCost       int64      `json:"tap_upgrade_cost"`
	EnergyCapLevel       int        `json:"energy_cap_upgrade_level"`
	EnergyCapUpgradeCost int64      `json:"energy_cap_upgrade_cost"`
	PendingOfflineReward int64      `json:"pending_offline_reward"`
	Cards                []CardView `json:"cards"`
}

// View returns the current state with derived values.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewOf(e.state)
}

// ViewOf derives a View from any snapshot of this engine's player.
func (e *Engine) ViewOf(p progress.Progress) View {
	return e.viewOf(p)
}

func (e *Engine) viewOf(p progress.Progress) View {
	v := View{
		CurrentPoints:        p.CurrentPoints,
		LifetimePoints:       p.LifetimePoints,
		Energy:               p.Energy,
		MaxEnergy:            e.rules.MaxEnergy(p.EnergyCapUpgradeLevel),
		TapValue:             e.rules.TapValue(p.TapUpgradeLevel),
		IncomePerHour:        p.IncomePerHour(e.catalog),
		TapUpgradeLevel:      p.TapUpgradeLevel,
		TapUpgradeCost:       e.rules.UpgradeCost(p.TapUpgradeLevel),
		EnergyCapLevel:       p.EnergyCapUpgradeLevel,
		EnergyCapUpgradeCost: e.rules.UpgradeCost(p.EnergyCapUpgradeLevel),
		PendingOfflineReward: p.PendingOfflineReward,
		Cards:                make([]CardView, 0, len(p.MiningCards)),
	}
	for _, c := range p.MiningCards {
		def, ok := e.catalog.Lookup(c.ID)
		if !ok {
			continue
		}
		v.Cards = append(v.Cards, CardView{
			ID:            def.ID,
			Name:          def.Name,
			Level:         c.Level,
			NextCost:      e.rules.CardCost(def.BaseCost, c.Level),
			ProfitPerHour: rules.CardIncome(def.BaseProfitPerHour, c.Level),
		})
	}
	return v
}
