package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/platform/optimization"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the mini-app is served from another origin
	},
}

// Hub tracks connected clients per player and pushes STATE messages to
// every client of a player whenever that player's game changes.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	changed    chan struct{}
	done       chan struct{}
	mu         sync.Mutex

	// players with a STATE push owed; leaf lock, taken under engine locks
	pendingMu sync.Mutex
	pending   map[string]struct{}

	sessions   *session.Manager
	dispatcher *Dispatcher
	validator  *Validator
	cfg        *optimization.Config
	logger     *logger.Logger
}

// NewHub creates a hub and hooks it into every session the manager opens.
func NewHub(sessions *session.Manager, dispatcher *Dispatcher, validator *Validator, cfg *optimization.Config, log *logger.Logger) *Hub {
	if cfg == nil {
		cfg = optimization.DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}
	h := &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		changed:    make(chan struct{}, 1),
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
		sessions:   sessions,
		dispatcher: dispatcher,
		validator:  validator,
		cfg:        cfg,
		logger:     log,
	}
	sessions.OnOpen(h.watch)
	return h
}

// watch subscribes to a session's changes. The callbacks run under the
// engine or quest lock, so they only queue the player id.
func (h *Hub) watch(s *session.Session) {
	id := s.PlayerID()
	s.Engine().Subscribe(func(progress.Progress) { h.Notify(id) })
	s.Quests().OnChange(func(rewards.Status) { h.Notify(id) })
}

// Notify schedules a STATE push for playerID. It never blocks. Repeated
// changes before the push coalesce into one, and none is lost.
func (h *Hub) Notify(playerID string) {
	h.pendingMu.Lock()
	h.pending[playerID] = struct{}{}
	h.pendingMu.Unlock()
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// takePending returns and clears the players owed a push.
func (h *Hub) takePending() []string {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	ids := make([]string, 0, len(h.pending))
	for id := range h.pending {
		ids = append(ids, id)
	}
	clear(h.pending)
	return ids
}

// Run handles registrations and state pushes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, room := range h.rooms {
				for c := range room {
					c.close()
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub shutting down")
			return
		case c := <-h.register:
			h.mu.Lock()
			id := c.session.PlayerID()
			if h.rooms[id] == nil {
				h.rooms[id] = make(map[*Client]bool)
			}
			h.rooms[id][c] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Infof("client connected for %s", id)
			h.pushState(id)
		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
		case <-h.changed:
			for _, id := range h.takePending() {
				h.pushState(id)
			}
		}
	}
}

// removeLocked drops c from its room and closes its send queue.
func (h *Hub) removeLocked(c *Client) {
	id := c.session.PlayerID()
	room, ok := h.rooms[id]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, id)
	}
	c.close()
	metrics.Get().RecordWSConnection(-1)
	h.logger.Infof("client disconnected for %s", id)
}

func (h *Hub) pushState(playerID string) {
	h.mu.Lock()
	room := h.rooms[playerID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	if len(clients) == 0 {
		return
	}

	// all clients of a player share one session
	data, err := encodeMessage(MsgTypeState, clients[0].session.State())
	if err != nil {
		h.logger.Errorf("encode state for %s: %v", playerID, err)
		return
	}
	for _, c := range clients {
		if !c.enqueue(data) {
			h.logger.Warnf("dropping slow client of %s", playerID)
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the connected clients of playerID.
func (h *Hub) ClientCount(playerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[playerID])
}

// ServeWS upgrades GET /ws?player=<id> and attaches the connection to the
// player's session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player")
	if !identity.ValidID(playerID) {
		http.Error(w, "missing or invalid player", http.StatusBadRequest)
		return
	}
	if h.cfg.MaxClientsPerPlayer > 0 && h.ClientCount(playerID) >= h.cfg.MaxClientsPerPlayer {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	sess, err := h.sessions.Acquire(r.Context(), playerID)
	if err != nil {
		h.logger.Errorf("open session for %s: %v", playerID, err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sessions.Release(sess)
		h.logger.Warnf("websocket upgrade failed for %s: %v", playerID, err)
		return
	}

	client := NewClient(h, conn, sess)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		h.sessions.Release(sess)
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func encodeMessage(t MessageType, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: t, Timestamp: time.Now().UnixMilli(), Payload: payload})
}
