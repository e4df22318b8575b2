package network

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
	"github.com/MRamiBalles/Basecaster/internal/platform/optimization"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

type harness struct {
	srv    *httptest.Server
	mgr    *session.Manager
	hub    *Hub
	store  *leaderboard.MemoryStore
	events *storage.SQLiteEventRepository
}

func newHarness(t *testing.T, cfg *optimization.Config) *harness {
	t.Helper()
	kv := storage.NewMemoryKV()
	catalog := card.Default()
	r := rules.Default()
	store := leaderboard.NewMemoryStore()
	board := leaderboard.NewBoard(store, nil, 100)
	reg := identity.NewRegistry(kv, nil)

	mgr := session.NewManager(session.Deps{
		Slots:        savegame.NewSlots(kv, catalog, r, nil),
		Registry:     reg,
		KV:           kv,
		Catalog:      catalog,
		Rules:        r,
		Rewards:      rewards.DefaultConfig(),
		Leaderboard:  store,
		Board:        board,
		SyncInterval: time.Hour,
		PushTimeout:  time.Second,
	}, nil)

	if cfg == nil {
		cfg = optimization.DefaultConfig()
	}
	dispatcher := NewDispatcher(nil)
	validator := MustValidator()
	hub := NewHub(mgr, dispatcher, validator, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	db, err := storage.InitSQLite(":memory:")
	require.NoError(t, err)
	repo := storage.NewSQLiteEventRepository(db)

	mux := http.NewServeMux()
	NewAPI(mgr, reg, board, dispatcher, validator, nil).RegisterRoutes(mux)
	NewHistoryHandler(repo, nil).RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		mgr.Shutdown()
		db.Close()
	})
	return &harness{srv: srv, mgr: mgr, hub: hub, store: store, events: repo}
}

func (h *harness) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(h.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestValidatorAcceptsAndRejects(t *testing.T) {
	v := MustValidator()
	valid := []string{
		`{"type":"TAP"}`,
		`{"type":"TAP","request_id":"r1"}`,
		`{"type":"BUY_UPGRADE","payload":{"track":"tap"}}`,
		`{"type":"BUY_CARD","payload":{"card_id":"gpu_rig"}}`,
		`{"type":"START_FOLLOW","payload":{"platform":"twitter"}}`,
		`{"type":"CLAIM_REFERRAL","payload":{"referrer_id":"user_1"}}`,
		`{"type":"SYNC"}`,
	}
	for _, raw := range valid {
		_, err := v.Parse([]byte(raw))
		assert.NoError(t, err, raw)
	}

	invalid := []string{
		`not json`,
		`{}`,
		`{"type":"FLY"}`,
		`{"type":"TAP","extra":1}`,
		`{"type":"BUY_UPGRADE"}`,
		`{"type":"BUY_CARD","payload":{"card_id":""}}`,
		`{"type":"VERIFY_FOLLOW","payload":{}}`,
		`{"type":"BUY_CARD","payload":{"card_id":7}}`,
	}
	for _, raw := range invalid {
		_, err := v.Parse([]byte(raw))
		assert.Error(t, err, raw)
	}

	in, err := v.Parse([]byte(`{"type":"BUY_CARD","request_id":"x","payload":{"card_id":"gpu_rig"}}`))
	require.NoError(t, err)
	assert.Equal(t, IntentBuyCard, in.Type)
	assert.Equal(t, "x", in.RequestID)
}

func TestDispatcherOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.mgr.Acquire(ctx, "disp")
	require.NoError(t, err)
	defer h.mgr.Release(s)
	d := NewDispatcher(nil)

	res := d.Dispatch(ctx, s, Intent{Type: IntentTap, RequestID: "r1"})
	assert.True(t, res.OK)
	assert.Equal(t, int64(1), res.Amount)
	assert.Equal(t, "r1", res.RequestID)
	assert.Equal(t, int64(1), res.State.Game.CurrentPoints)

	cases := []struct {
		in     Intent
		reason string
	}{
		{Intent{Type: IntentBuyUpgrade, Payload: json.RawMessage(`{"track":"tap"}`)}, ReasonInsufficientPoints},
		{Intent{Type: IntentBuyUpgrade, Payload: json.RawMessage(`{"track":"turbo"}`)}, ReasonUnknownTrack},
		{Intent{Type: IntentBuyCard, Payload: json.RawMessage(`{"card_id":"nope"}`)}, ReasonUnknownCard},
		{Intent{Type: IntentBuyCard, Payload: json.RawMessage(`{"card_id":"cpu_miner"}`)}, ReasonInsufficientPoints},
		{Intent{Type: IntentClaimOffline}, ReasonNothingToClaim},
		{Intent{Type: IntentVerifyFollow, Payload: json.RawMessage(`{"platform":"twitter"}`)}, ReasonNotVerifying},
		{Intent{Type: IntentStartFollow, Payload: json.RawMessage(`{"platform":"myspace"}`)}, ReasonUnknownPlatform},
		{Intent{Type: IntentClaimReferral, Payload: json.RawMessage(`{"referrer_id":"disp"}`)}, ReasonNotEligible},
		{Intent{Type: IntentBuyCard}, ReasonInvalid},
		{Intent{Type: "DANCE"}, ReasonUnknownIntent},
	}
	for _, c := range cases {
		res := d.Dispatch(ctx, s, c.in)
		assert.False(t, res.OK, c.in.Type)
		assert.Equal(t, c.reason, res.Reason, c.in.Type)
	}
	assert.Equal(t, int64(1), s.Engine().Snapshot().CurrentPoints)

	res = d.Dispatch(ctx, s, Intent{Type: IntentClaimDaily})
	assert.True(t, res.OK)
	assert.Equal(t, int64(1000), res.Amount)
	res = d.Dispatch(ctx, s, Intent{Type: IntentClaimDaily})
	assert.Equal(t, ReasonCooldown, res.Reason)

	res = d.Dispatch(ctx, s, Intent{Type: IntentBuyCard, Payload: json.RawMessage(`{"card_id":"cpu_miner"}`)})
	assert.True(t, res.OK)
	assert.Equal(t, int64(501), res.State.Game.CurrentPoints)
	assert.Equal(t, int64(100), res.State.Game.IncomePerHour)
}

func TestProfileStateAndIntentOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/api/profile", `{"username":"  ana ","wallet":"0xA1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var prof identity.Profile
	require.NoError(t, json.Unmarshal(body, &prof))
	assert.Equal(t, "ana", prof.Username)
	require.True(t, identity.ValidID(prof.ID))

	resp, _ = h.post(t, "/api/profile", `{"username":"","wallet":"0xA1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.post(t, "/api/intent?player="+prof.ID, `{"type":"TAP"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.OK)

	resp, _ = h.post(t, "/api/intent?player="+prof.ID, `{"type":"JUMP"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.post(t, "/api/intent", `{"type":"TAP"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var st session.State
	require.Equal(t, http.StatusOK, h.get(t, "/api/state?player="+prof.ID, &st))
	assert.Equal(t, int64(1), st.Game.LifetimePoints)
	assert.Equal(t, int64(999), st.Game.Energy)

	resp, err := http.Get(h.srv.URL + "/api/profile")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLeaderboardAfterSync(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := h.post(t, "/api/profile", `{"player_id":"lb_1","username":"top","wallet":"w"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h.post(t, "/api/intent?player=lb_1", `{"type":"CLAIM_DAILY"}`)

	require.NoError(t, h.store.Upsert(context.Background(), leaderboard.Entry{Identity: "other", Username: "o", LifetimePoints: 5}))
	h.mgr.Shutdown() // final push on teardown

	var lb LeaderboardResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/leaderboard?limit=10", &lb))
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "lb_1", lb.Entries[0].Identity)
	assert.Equal(t, int64(1000), lb.Entries[0].LifetimePoints)
	assert.Equal(t, 1, lb.Entries[0].Rank)
}

func TestHistoryEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, e := range []storage.StoredEvent{
		{ID: "e1", EventType: "TAP", ActorID: "hist", Payload: `{"gained":1}`},
		{ID: "e2", EventType: "TAP", ActorID: "hist", Payload: `{"gained":1}`},
		{ID: "e3", EventType: "GRANT", ActorID: "hist", Payload: `{"amount":1000,"reason":"daily"}`},
		{ID: "e4", EventType: "GRANT", ActorID: "someone", Payload: `{"amount":5}`},
	} {
		e.Timestamp = now.Add(time.Duration(i) * time.Second)
		require.NoError(t, h.events.Append(ctx, e))
	}

	var hist HistoryResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/history?player=hist", &hist))
	assert.Equal(t, int64(1002), hist.Ledger.Earned())
	require.Len(t, hist.Events, 2)
	assert.Equal(t, "2 taps", hist.Events[0].Summary)
	assert.Equal(t, "daily reward", hist.Events[1].Summary)

	var grants struct {
		Total int `json:"total"`
	}
	require.Equal(t, http.StatusOK, h.get(t, "/api/history/events?type=GRANT&player=hist", &grants))
	assert.Equal(t, 1, grants.Total)

	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/history", nil))
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/history/events", nil))
}

func dialWS(t *testing.T, h *harness, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips messages until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m inbound
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type == want {
			return m
		}
	}
}

func TestWebSocketStateAndIntents(t *testing.T) {
	h := newHarness(t, nil)
	a := dialWS(t, h, "ws_1")
	b := dialWS(t, h, "ws_1")

	first := readUntil(t, a, MsgTypeState)
	var st session.State
	require.NoError(t, json.Unmarshal(first.Payload, &st))
	assert.Equal(t, "ws_1", st.PlayerID)
	assert.Equal(t, 1, h.mgr.Active())

	require.NoError(t, a.WriteJSON(map[string]any{"type": "TAP", "request_id": "t1"}))
	m := readUntil(t, a, MsgTypeResult)
	var res Result
	require.NoError(t, json.Unmarshal(m.Payload, &res))
	assert.True(t, res.OK)
	assert.Equal(t, "t1", res.RequestID)

	// the second tab sees the change
	for seen := false; !seen; {
		m := readUntil(t, b, MsgTypeState)
		var st session.State
		require.NoError(t, json.Unmarshal(m.Payload, &st))
		seen = st.Game.CurrentPoints == 1
	}

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOPE"}`)))
	m = readUntil(t, a, MsgTypeError)
	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(m.Payload, &ep))
	assert.Equal(t, ReasonInvalid, ep.Reason)

	a.Close()
	b.Close()
	require.Eventually(t, func() bool { return h.mgr.Active() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketThrottle(t *testing.T) {
	cfg := optimization.LowResourceConfig()
	cfg.MaxMessagesPerSecond = 1
	cfg.MessageBurst = 1
	h := newHarness(t, cfg)
	conn := dialWS(t, h, "ws_2")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "TAP"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "TAP"}))
	m := readUntil(t, conn, MsgTypeError)
	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(m.Payload, &ep))
	assert.Equal(t, ReasonThrottled, ep.Reason)
}

func TestWebSocketRequiresPlayer(t *testing.T) {
	h := newHarness(t, nil)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifyCoalescesWithoutDropping(t *testing.T) {
	h := newHarness(t, nil)
	// a second hub that is never run, so the queue can be inspected
	idle := NewHub(h.mgr, NewDispatcher(nil), MustValidator(), optimization.LowResourceConfig(), nil)

	players := []string{"p1", "p2", "p3"}
	for i := 0; i < 500; i++ {
		idle.Notify(players[i%len(players)])
	}
	assert.Len(t, idle.changed, 1)
	assert.ElementsMatch(t, players, idle.takePending())
	assert.Empty(t, idle.takePending())
}

func TestPurchasePushedToOtherTabAtFullEnergy(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.mgr.With(ctx, "quinn", func(s *session.Session) error {
		s.Engine().Grant(1000)
		return nil
	}))

	first := dialWS(t, h, "quinn")
	second := dialWS(t, h, "quinn")
	readUntil(t, first, MsgTypeState)
	readUntil(t, second, MsgTypeState)

	require.NoError(t, first.WriteJSON(map[string]any{
		"type":    "BUY_UPGRADE",
		"payload": map[string]any{"track": "tap"},
	}))

	// energy stays full, so only the purchase itself can produce this push
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg inbound
		require.NoError(t, second.ReadJSON(&msg))
		if msg.Type != MsgTypeState {
			continue
		}
		var st session.State
		require.NoError(t, json.Unmarshal(msg.Payload, &st))
		if st.Game.TapUpgradeLevel == 1 {
			break
		}
	}
}
