// Package test - soak.go
// Economy soak scenarios: long random operation sequences against a real
// engine, checking the economy invariants after every step.
package test

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
)

// TestResult captures the outcome of each scenario.
type TestResult struct {
	ScenarioName string
	Steps        int
	Passed       bool
	Reason       string
}

// EconomySoak runs the soak scenarios.
type EconomySoak struct {
	catalog *card.Catalog
	rules   rules.Rules
	steps   int
	rng     *rand.Rand
	logger  *logger.Logger
	results []TestResult
}

// NewEconomySoak creates the harness. seed makes runs reproducible.
func NewEconomySoak(steps int, seed int64, log *logger.Logger) *EconomySoak {
	if log == nil {
		log = logger.Discard()
	}
	return &EconomySoak{
		catalog: card.Default(),
		rules:   rules.Default(),
		steps:   steps,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  log,
	}
}

// Run executes every scenario until ctx is cancelled.
func (s *EconomySoak) Run(ctx context.Context) []TestResult {
	scenarios := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"random operations keep invariants", s.randomOperations},
		{"save round trip is lossless", s.saveRoundTrip},
		{"offline income is capped", s.offlineCap},
	}
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		started := time.Now()
		err := sc.fn(ctx)
		r := TestResult{ScenarioName: sc.name, Steps: s.steps, Passed: err == nil}
		if err != nil {
			r.Reason = err.Error()
		}
		s.results = append(s.results, r)
		s.logger.Infof("scenario %q passed=%t in %s", sc.name, r.Passed, time.Since(started).Round(time.Millisecond))
	}
	return s.results
}

// Results returns the results collected so far.
func (s *EconomySoak) Results() []TestResult {
	return s.results
}

func (s *EconomySoak) newEngine(p progress.Progress) (*engine.Engine, error) {
	e := engine.NewEngine("soak", p, s.catalog, s.rules, events.NewEventLog(nil), s.logger)
	return e, e.ReconcileOfflineTime(0)
}

// step applies one random operation.
func (s *EconomySoak) step(e *engine.Engine) {
	cards := s.catalog.Cards()
	switch n := s.rng.Intn(100); {
	case n < 70:
		e.Tap()
	case n < 80:
		e.TickRegeneration()
	case n < 85:
		e.BuyUpgrade(engine.TrackTap)
	case n < 88:
		e.BuyUpgrade(engine.TrackEnergyCap)
	case n < 95:
		e.BuyCard(cards[s.rng.Intn(len(cards))].ID)
	case n < 99:
		e.Grant(s.rng.Int63n(5000) - 100)
	default:
		e.ClaimOfflineReward()
	}
}

func (s *EconomySoak) check(prev, cur progress.Progress) error {
	switch {
	case cur.CurrentPoints < 0:
		return fmt.Errorf("negative balance %d", cur.CurrentPoints)
	case cur.CurrentPoints > cur.LifetimePoints:
		return fmt.Errorf("balance %d above lifetime %d", cur.CurrentPoints, cur.LifetimePoints)
	case cur.LifetimePoints < prev.LifetimePoints:
		return fmt.Errorf("lifetime fell from %d to %d", prev.LifetimePoints, cur.LifetimePoints)
	case cur.Energy < 0 || cur.Energy > s.rules.MaxEnergy(cur.EnergyCapUpgradeLevel):
		return fmt.Errorf("energy %d outside [0,%d]", cur.Energy, s.rules.MaxEnergy(cur.EnergyCapUpgradeLevel))
	case cur.TapUpgradeLevel < prev.TapUpgradeLevel || cur.EnergyCapUpgradeLevel < prev.EnergyCapUpgradeLevel:
		return fmt.Errorf("upgrade level decreased")
	}
	for i, c := range cur.MiningCards {
		if c.Level < prev.MiningCards[i].Level {
			return fmt.Errorf("card %s level decreased", c.ID)
		}
	}
	return nil
}

func (s *EconomySoak) randomOperations(ctx context.Context) error {
	e, err := s.newEngine(progress.Fresh(s.catalog, s.rules))
	if err != nil {
		return err
	}
	prev := e.Snapshot()
	for i := 0; i < s.steps; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		s.step(e)
		cur := e.Snapshot()
		if err := s.check(prev, cur); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		prev = cur
	}
	return nil
}

func (s *EconomySoak) saveRoundTrip(ctx context.Context) error {
	e, err := s.newEngine(progress.Fresh(s.catalog, s.rules))
	if err != nil {
		return err
	}
	now := time.Now()
	for i := 0; i < s.steps; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		s.step(e)
		if i%97 != 0 {
			continue
		}
		want := e.Snapshot()
		raw, err := savegame.Encode(want, now)
		if err != nil {
			return err
		}
		got, err := savegame.Decode(raw, s.catalog, s.rules)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		restored, err := s.newEngine(got)
		if err != nil {
			return err
		}
		g := restored.Snapshot()
		if g.CurrentPoints != want.CurrentPoints || g.LifetimePoints != want.LifetimePoints ||
			g.Energy != want.Energy || g.PendingOfflineReward != want.PendingOfflineReward ||
			g.IncomePerHour(s.catalog) != want.IncomePerHour(s.catalog) {
			return fmt.Errorf("step %d: restored state differs", i)
		}
	}
	return nil
}

func (s *EconomySoak) offlineCap(context.Context) error {
	p := progress.Fresh(s.catalog, s.rules)
	for i := range p.MiningCards {
		p.MiningCards[i].Level = 1 + s.rng.Intn(20)
	}
	p.Energy = 0
	income := p.IncomePerHour(s.catalog)
	capHours := int64(s.rules.OfflineCap / time.Hour)

	for _, hours := range []int64{1, capHours, capHours + 2, 48} {
		e := engine.NewEngine("soak", p, s.catalog, s.rules, nil, s.logger)
		if err := e.ReconcileOfflineTime(hours * 3600); err != nil {
			return err
		}
		want := income * min(hours, capHours)
		if got := e.Snapshot().PendingOfflineReward; got != want {
			return fmt.Errorf("%dh away: pending %d, want %d", hours, got, want)
		}
	}
	return nil
}

// Summary renders the results as a table.
func Summary(results []TestResult) string {
	var b strings.Builder
	for _, r := range results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "%-4s %-40s %s\n", mark, r.ScenarioName, r.Reason)
	}
	return b.String()
}
