package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
)

// ErrAlreadyReconciled is returned by a second ReconcileOfflineTime call.
var ErrAlreadyReconciled = errors.New("offline time already reconciled")

// Observer receives a copy of the progress after every change. Observers are
// called with the engine lock held and must not block or call back into the
// engine.
type Observer func(p progress.Progress)

// Engine is the single writer of one player's progress.
type Engine struct {
	mu sync.Mutex

	playerID string
	state    progress.Progress
	catalog  *card.Catalog
	rules    rules.Rules

	reconciled bool
	observers  []Observer

	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewEngine wraps a restored or fresh progress. The state is normalised
// against the catalog and rules; actions are rejected until
// ReconcileOfflineTime has run. eventLog may be nil.
func NewEngine(playerID string, initial progress.Progress, catalog *card.Catalog, r rules.Rules, eventLog *events.EventLog, log *logger.Logger) *Engine {
	state := initial.Clone()
	state.Normalize(catalog, r)
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		playerID: playerID,
		state:    state,
		catalog:  catalog,
		rules:    r,
		eventLog: eventLog,
		logger:   log,
		metrics:  metrics.Get(),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for event timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// PlayerID returns the owner of this engine.
func (e *Engine) PlayerID() string {
	return e.playerID
}

// Rules returns the economy constants the engine runs with.
func (e *Engine) Rules() rules.Rules {
	return e.rules
}

// Catalog returns the card catalog.
func (e *Engine) Catalog() *card.Catalog {
	return e.catalog
}

// Subscribe registers a change observer.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Reconciled reports whether the engine accepts actions yet.
func (e *Engine) Reconciled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconciled
}

// Snapshot returns a deep copy of the current progress.
func (e *Engine) Snapshot() progress.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// commit records an audit event (unless typ is empty) and notifies observers.
// Caller holds e.mu.
func (e *Engine) commit(typ events.EventType, payload map[string]any) {
	if typ != "" && e.eventLog != nil {
		e.eventLog.Append(events.GameEvent{
			Timestamp: e.now(),
			Type:      typ,
			ActorID:   e.playerID,
			Payload:   payload,
		})
	}
	if len(e.observers) == 0 {
		return
	}
	snap := e.state.Clone()
	for _, o := range e.observers {
		o(snap)
	}
}

func (e *Engine) maxEnergy() int64 {
	return e.rules.MaxEnergy(e.state.EnergyCapUpgradeLevel)
}

// credit adds points to both balances. Caller holds e.mu.
func (e *Engine) credit(amount int64) {
	e.state.CurrentPoints = rules.SatAdd(e.state.CurrentPoints, amount)
	e.state.LifetimePoints = rules.SatAdd(e.state.LifetimePoints, amount)
}
