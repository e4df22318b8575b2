// Package session owns the per-player runtime: one engine, its background
// workers and its quest board, opened on first use and torn down when the
// last user leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
	"github.com/MRamiBalles/Basecaster/internal/platform/clock"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
)

var (
	ErrInvalidPlayer = errors.New("invalid player id")
	ErrShutdown      = errors.New("session manager is shut down")
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Slots    *savegame.Slots
	Registry *identity.Registry
	KV       storage.KeyValueStore // quest state
	EventLog *events.EventLog      // optional
	Catalog  *card.Catalog
	Rules    rules.Rules
	Rewards  rewards.Config

	// Leaderboard is optional; without it nothing is mirrored.
	Leaderboard  leaderboard.Store
	Board        *leaderboard.Board
	SyncInterval time.Duration
	PushTimeout  time.Duration

	// Linger keeps an unreferenced session open before teardown.
	Linger time.Duration
	Clock  clock.Clock
}

// Manager opens and closes sessions. One session exists per player, so all
// of a player's clients share one engine. Loads and final saves run outside
// mu, so one player's slow storage never stalls another player.
type Manager struct {
	deps   Deps
	logger *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closing  map[string]*Session // detached, final save in flight
	onOpen   []func(*Session)
	closed   bool
	pending  sync.WaitGroup // opens and teardowns in flight
}

// NewManager creates a manager.
func NewManager(deps Deps, log *logger.Logger) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		deps:     deps,
		logger:   log,
		sessions: make(map[string]*Session),
		closing:  make(map[string]*Session),
	}
}

// OnOpen registers fn to run for every new session after reconciliation
// and before the session is handed out.
func (m *Manager) OnOpen(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = append(m.onOpen, fn)
}

// Acquire returns the player's session, opening it if needed. Every
// successful Acquire must be paired with a Release. Concurrent Acquires for
// a player that is still loading wait for that load.
func (m *Manager) Acquire(ctx context.Context, playerID string) (*Session, error) {
	if !identity.ValidID(playerID) {
		return nil, ErrInvalidPlayer
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	if s, ok := m.sessions[playerID]; ok {
		s.refs++
		if s.linger != nil {
			s.linger.Stop()
			s.linger = nil
		}
		m.mu.Unlock()
		<-s.ready
		if s.openErr != nil {
			return nil, s.openErr
		}
		return s, nil
	}

	s := newSession(playerID)
	s.refs = 1
	m.sessions[playerID] = s
	prev := m.closing[playerID]
	m.pending.Add(1)
	m.mu.Unlock()
	defer m.pending.Done()

	// the previous session's final save must land before the slot is read
	if prev != nil {
		<-prev.gone
	}

	err := m.open(ctx, s)

	m.mu.Lock()
	if err == nil && (m.closed || m.sessions[playerID] != s) {
		m.mu.Unlock()
		s.teardown()
		err = ErrShutdown
		m.mu.Lock()
	}
	if err != nil {
		if m.sessions[playerID] == s {
			delete(m.sessions, playerID)
		}
		s.openErr = err
		m.mu.Unlock()
		close(s.ready)
		return nil, err
	}
	s.opened = true
	hooks := append(([]func(*Session))(nil), m.onOpen...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
	metrics.Get().RecordSession(1)
	m.logger.Infof("session %s opened", playerID)
	close(s.ready)
	return s, nil
}

// Release drops one reference. The last release tears the session down,
// after the configured linger.
func (m *Manager) Release(s *Session) {
	m.mu.Lock()
	s.refs--
	if s.refs > 0 || m.sessions[s.playerID] != s {
		m.mu.Unlock()
		return
	}
	if m.deps.Linger <= 0 {
		m.detachLocked(s)
		m.mu.Unlock()
		m.finish(s)
		return
	}
	s.linger = time.AfterFunc(m.deps.Linger, func() {
		m.mu.Lock()
		if s.refs != 0 || m.sessions[s.playerID] != s {
			m.mu.Unlock()
			return
		}
		m.detachLocked(s)
		m.mu.Unlock()
		m.finish(s)
	})
	m.mu.Unlock()
}

// With runs fn inside an acquired session.
func (m *Manager) With(ctx context.Context, playerID string, fn func(*Session) error) error {
	s, err := m.Acquire(ctx, playerID)
	if err != nil {
		return err
	}
	defer m.Release(s)
	return fn(s)
}

// Lookup returns an open session without taking a reference.
func (m *Manager) Lookup(playerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerID]
	if !ok || !s.opened {
		return nil, false
	}
	return s, true
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.opened {
			n++
		}
	}
	return n
}

// Shutdown closes every session and waits for the final saves, including
// those of sessions still opening. Later Acquires fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	var open []*Session
	for id, s := range m.sessions {
		if !s.opened {
			// its Acquire sees closed and tears it down
			delete(m.sessions, id)
			continue
		}
		m.detachLocked(s)
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		go m.finish(s)
	}
	m.pending.Wait()
	m.logger.Info("all sessions closed")
}

// open loads, reconciles and starts s.
func (m *Manager) open(ctx context.Context, s *Session) error {
	d := m.deps
	playerID := s.playerID

	p, found, err := d.Slots.Load(ctx, playerID)
	switch {
	case errors.Is(err, savegame.ErrCorruptSnapshot):
		metrics.Get().RecordCorruptSnapshot()
		m.logger.Warnf("save for %s is corrupt, starting fresh: %v", playerID, err)
		p, found = progress.Fresh(d.Catalog, d.Rules), false
	case err != nil:
		return fmt.Errorf("open session %s: %w", playerID, err)
	case !found:
		p = progress.Fresh(d.Catalog, d.Rules)
	}

	eng := engine.NewEngine(playerID, p, d.Catalog, d.Rules, d.EventLog, m.logger)
	eng.SetClock(d.Clock.Now)

	quests := rewards.NewQuests(playerID, d.Rewards, d.KV, eng, d.Clock, m.logger)
	quests.SetEventLog(d.EventLog)
	if err := quests.Load(ctx); err != nil {
		return fmt.Errorf("open session %s: %w", playerID, err)
	}

	saver := savegame.NewSaver(d.Slots, playerID, m.logger)
	eng.Subscribe(saver.Submit)

	elapsed := int64(0)
	if found {
		elapsed = engine.ElapsedSeconds(p.LastPersistedAtMs, d.Slots.Now().UnixMilli())
	}
	// The reconcile commit queues the first save, which also covers fresh players.
	if err := eng.ReconcileOfflineTime(elapsed); err != nil {
		return fmt.Errorf("open session %s: %w", playerID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.engine = eng
	s.quests = quests
	s.saver = saver
	s.ticker = engine.NewRegenTicker(eng, d.Rules.RegenInterval, m.logger)
	s.cancel = cancel
	go s.ticker.Start(runCtx)
	go saver.Run(runCtx)

	if d.Leaderboard != nil {
		s.syncer = leaderboard.NewSyncer(d.Leaderboard, m.entrySource(eng), d.SyncInterval, d.PushTimeout, m.logger)
		if d.Board != nil {
			s.syncer.OnPushed(d.Board.Invalidate)
		}
		s.unwatch = d.Registry.Watch(playerID, func(identity.Profile) { s.syncer.Establish() })
		go s.syncer.Run(runCtx)
	}

	m.logger.Infof("session %s loaded (offline %ds, restored=%t)", playerID, elapsed, found)
	return nil
}

func (m *Manager) entrySource(eng *engine.Engine) leaderboard.Source {
	id := eng.PlayerID()
	return func(ctx context.Context) (leaderboard.Entry, bool) {
		prof, err := m.deps.Registry.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, identity.ErrNoProfile) {
				m.logger.Warnf("leaderboard source for %s: %v", id, err)
			}
			return leaderboard.Entry{}, false
		}
		return leaderboard.Entry{
			Identity:       id,
			Username:       prof.Username,
			LifetimePoints: eng.Snapshot().LifetimePoints,
			UpdatedAt:      m.deps.Clock.Now().UTC(),
		}, true
	}
}

// detachLocked removes s from the live set so a later Acquire opens a new
// session once s is gone. Caller holds m.mu and must call finish.
func (m *Manager) detachLocked(s *Session) {
	if s.linger != nil {
		s.linger.Stop()
		s.linger = nil
	}
	delete(m.sessions, s.playerID)
	m.closing[s.playerID] = s
	m.pending.Add(1)
}

// finish runs the teardown of a detached session without holding m.mu.
func (m *Manager) finish(s *Session) {
	defer m.pending.Done()
	s.teardown()

	m.mu.Lock()
	if m.closing[s.playerID] == s {
		delete(m.closing, s.playerID)
	}
	m.mu.Unlock()
	close(s.gone)

	metrics.Get().RecordSession(-1)
	m.logger.Infof("session %s closed", s.playerID)
}
