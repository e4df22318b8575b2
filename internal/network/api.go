// Package network - api.go
// HTTP API for clients that do not hold a WebSocket open: profile setup,
// state reads, one-shot intents and the leaderboard.
package network

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

const maxBodyBytes = 4 << 10

// API serves the HTTP endpoints.
type API struct {
	sessions   *session.Manager
	registry   *identity.Registry
	board      *leaderboard.Board
	dispatcher *Dispatcher
	validator  *Validator
	logger     *logger.Logger
}

// NewAPI creates the HTTP API.
func NewAPI(sessions *session.Manager, registry *identity.Registry, board *leaderboard.Board, dispatcher *Dispatcher, validator *Validator, log *logger.Logger) *API {
	if log == nil {
		log = logger.Discard()
	}
	return &API{
		sessions:   sessions,
		registry:   registry,
		board:      board,
		dispatcher: dispatcher,
		validator:  validator,
		logger:     log,
	}
}

// ProfileRequest is the Welcome form. An empty PlayerID asks the server to
// mint a new anonymous id.
type ProfileRequest struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Wallet   string `json:"wallet"`
}

// HandleProfile creates or updates a profile.
// POST /api/profile
func (a *API) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ProfileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = identity.NewPlayerID()
	}

	p, err := a.registry.Establish(r.Context(), req.PlayerID, req.Username, req.Wallet)
	switch {
	case errors.Is(err, identity.ErrInvalidID), errors.Is(err, identity.ErrInvalidUsername), errors.Is(err, identity.ErrInvalidWallet):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		a.logger.Errorf("establish profile %s: %v", req.PlayerID, err)
		jsonError(w, "Profile unavailable", http.StatusInternalServerError)
		return
	}
	a.logger.Event("PROFILE_ESTABLISHED", p.ID, p.Username)
	jsonSuccess(w, p)
}

// HandleState returns the player's current state.
// GET /api/state?player=<id>
func (a *API) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var st session.State
	err := a.sessions.With(r.Context(), r.URL.Query().Get("player"), func(s *session.Session) error {
		st = s.State()
		return nil
	})
	if err != nil {
		a.sessionError(w, err)
		return
	}
	jsonSuccess(w, st)
}

// HandleIntent applies one intent and returns the RESULT payload.
// POST /api/intent?player=<id>
func (a *API) HandleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in, err := a.validator.Parse(raw)
	if err != nil {
		metrics.Get().RecordIntentRejected()
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var res Result
	err = a.sessions.With(r.Context(), r.URL.Query().Get("player"), func(s *session.Session) error {
		res = a.dispatcher.Dispatch(r.Context(), s, in)
		return nil
	})
	if err != nil {
		a.sessionError(w, err)
		return
	}
	jsonSuccess(w, res)
}

// LeaderboardResponse is the ranked board.
type LeaderboardResponse struct {
	GeneratedAt string               `json:"generated_at"`
	Entries     []leaderboard.Ranked `json:"entries"`
}

// HandleLeaderboard returns the top players by lifetime points.
// GET /api/leaderboard?limit=N
func (a *API) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := a.board.Top(r.Context(), limit)
	if err != nil {
		a.logger.Warnf("leaderboard read failed: %v", err)
		jsonError(w, "Leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonSuccess(w, LeaderboardResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     rows,
	})
}

// RegisterRoutes sets up the API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/profile", a.HandleProfile)
	mux.HandleFunc("/api/state", a.HandleState)
	mux.HandleFunc("/api/intent", a.HandleIntent)
	mux.HandleFunc("/api/leaderboard", a.HandleLeaderboard)
}

func (a *API) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidPlayer):
		jsonError(w, "Missing or invalid player", http.StatusBadRequest)
	case errors.Is(err, session.ErrShutdown):
		jsonError(w, "Server shutting down", http.StatusServiceUnavailable)
	default:
		a.logger.Errorf("session: %v", err)
		jsonError(w, "Session unavailable", http.StatusInternalServerError)
	}
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
