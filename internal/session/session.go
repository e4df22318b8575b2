package session

import (
	"time"

	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
)

// Session is one player's live game.
type Session struct {
	playerID string
	engine   *engine.Engine
	quests   *rewards.Quests
	saver    *savegame.Saver
	ticker   *engine.RegenTicker
	syncer   *leaderboard.Syncer
	unwatch  func()
	cancel   func()

	// guarded by Manager.mu
	refs   int
	linger *time.Timer
	opened bool

	ready   chan struct{} // closed once open finished, see openErr
	openErr error
	gone    chan struct{} // closed after teardown
}

func newSession(playerID string) *Session {
	return &Session{
		playerID: playerID,
		ready:    make(chan struct{}),
		gone:     make(chan struct{}),
	}
}

// State is what clients render: the engine view plus the quest board.
type State struct {
	PlayerID string         `json:"player_id"`
	Game     engine.View    `json:"game"`
	Quests   rewards.Status `json:"quests"`
}

func (s *Session) PlayerID() string { return s.playerID }

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Quests returns the session's quest board.
func (s *Session) Quests() *rewards.Quests { return s.quests }

// State returns the current client view.
func (s *Session) State() State {
	return State{PlayerID: s.playerID, Game: s.engine.View(), Quests: s.quests.Status()}
}

// SyncNow pushes to the leaderboard immediately if a mirror is configured.
func (s *Session) SyncNow() {
	if s.syncer != nil {
		s.syncer.Establish()
	}
}

// teardown stops the workers and waits for the final save and push.
func (s *Session) teardown() {
	s.ticker.Stop()
	s.quests.Close()
	if s.unwatch != nil {
		s.unwatch()
	}
	s.saver.Submit(s.engine.Snapshot())
	s.cancel()
	<-s.saver.Done()
	if s.syncer != nil {
		<-s.syncer.Done()
	}
}
