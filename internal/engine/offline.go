package engine

import (
	"fmt"

	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/events"
)

// ElapsedSeconds is the whole seconds between a snapshot stamp and now, both
// epoch milliseconds. Clock skew (now before the stamp) counts as zero.
func ElapsedSeconds(lastPersistedAtMs, nowMs int64) int64 {
	if lastPersistedAtMs <= 0 || nowMs <= lastPersistedAtMs {
		return 0
	}
	return (nowMs - lastPersistedAtMs) / 1000
}

// ReconcileOfflineTime applies an absence of elapsedSeconds exactly once:
// energy catches up without a time cap, idle income accrues into the pending
// reward up to the offline cap. It opens the engine for actions and ticks.
func (e *Engine) ReconcileOfflineTime(elapsedSeconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reconciled {
		return ErrAlreadyReconciled
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	before := e.state.Energy
	e.state.Energy = min(e.maxEnergy(), rules.SatAdd(e.state.Energy, e.rules.RegenCatchUp(elapsedSeconds)))

	income := e.state.IncomePerHour(e.catalog)
	reward := e.rules.OfflineReward(income, elapsedSeconds)
	e.state.PendingOfflineReward = rules.SatAdd(e.state.PendingOfflineReward, reward)
	e.reconciled = true

	e.metrics.RecordOfflineReconcile()
	e.logger.Event("OFFLINE_RECONCILED", e.playerID, formatReconcile(elapsedSeconds, e.state.Energy-before, reward))
	e.commit(events.EventTypeOfflineReconcile, map[string]any{
		"elapsed_seconds": elapsedSeconds,
		"energy_restored": e.state.Energy - before,
		"reward":          reward,
	})
	return nil
}

// ClaimOfflineReward grants the pending idle reward and clears it. It returns
// the amount granted; zero means there was nothing to claim.
func (e *Engine) ClaimOfflineReward() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reconciled || e.state.PendingOfflineReward <= 0 {
		return 0
	}
	amount := e.state.PendingOfflineReward
	e.credit(amount)
	e.state.PendingOfflineReward = 0
	e.metrics.RecordOfflineClaim(amount)
	e.commit(events.EventTypeOfflineClaimed, map[string]any{"amount": amount})
	return amount
}

func formatReconcile(elapsed, energy, reward int64) string {
	return fmt.Sprintf("away %ds, +%d energy, %d pending", elapsed, energy, reward)
}
