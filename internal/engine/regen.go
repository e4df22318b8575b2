package engine

// TickRegeneration restores RegenRate energy up to the cap. Ticks before
// reconciliation and ticks at the cap are no-ops. Ticks are not audited but
// observers still see the new energy.
func (e *Engine) TickRegeneration() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reconciled {
		return
	}
	limit := e.maxEnergy()
	if e.state.Energy >= limit {
		return
	}
	e.state.Energy = min(limit, e.state.Energy+e.rules.RegenRate)
	e.commit("", nil)
}
