// Package network - history.go
// Activity history: the audit trail of a player's earning and spending,
// folded into a recap feed and a ledger.
package network

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
)

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 1000
)

// HistoryHandler serves the audit history API.
type HistoryHandler struct {
	repo          storage.EventRepository
	reconstructor *storage.Reconstructor
	logger        *logger.Logger
}

// NewHistoryHandler creates a history handler over the persisted audit log.
func NewHistoryHandler(repo storage.EventRepository, log *logger.Logger) *HistoryHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &HistoryHandler{
		repo:          repo,
		reconstructor: storage.NewReconstructor(repo),
		logger:        log,
	}
}

// HistoryResponse is the API response for a player's history.
type HistoryResponse struct {
	PlayerID    string               `json:"player_id"`
	GeneratedAt string               `json:"generated_at"`
	Ledger      *storage.Ledger      `json:"ledger"`
	Events      []storage.RecapEvent `json:"events"`
}

// HandleHistory returns the recap feed and ledger of a player.
// GET /api/history?player=<id>&limit=N
func (hh *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := r.URL.Query().Get("player")
	if !identity.ValidID(playerID) {
		jsonError(w, "Missing or invalid player", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))

	ledger, err := hh.reconstructor.RebuildLedger(r.Context(), playerID, limit)
	if err != nil {
		hh.logger.Errorf("history ledger for %s: %v", playerID, err)
		jsonError(w, "History unavailable", http.StatusInternalServerError)
		return
	}
	recap, err := hh.reconstructor.GenerateRecap(r.Context(), playerID, limit)
	if err != nil {
		hh.logger.Errorf("history recap for %s: %v", playerID, err)
		jsonError(w, "History unavailable", http.StatusInternalServerError)
		return
	}

	jsonSuccess(w, HistoryResponse{
		PlayerID:    playerID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Ledger:      ledger,
		Events:      recap,
	})
}

// HandleEvents returns raw audit events of one type, optionally narrowed to
// a player.
// GET /api/history/events?type=GRANT&player=<id>&limit=N
func (hh *HistoryHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		jsonError(w, "Missing type", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player")

	rows, err := hh.repo.GetByEventType(r.Context(), eventType, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		hh.logger.Errorf("history events %s: %v", eventType, err)
		jsonError(w, "History unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]storage.StoredEvent, 0, len(rows))
	for _, e := range rows {
		if playerID == "" || e.ActorID == playerID {
			out = append(out, e)
		}
	}
	jsonSuccess(w, map[string]any{
		"type":   eventType,
		"total":  len(out),
		"events": out,
	})
}

// RegisterRoutes sets up the history routes.
func (hh *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", hh.HandleHistory)
	mux.HandleFunc("/api/history/events", hh.HandleEvents)
}

func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return min(n, maxHistoryLimit)
}
