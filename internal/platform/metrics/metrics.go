// Package metrics provides observability for the game server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers economy and runtime counters.
type Collector struct {
	// Economy
	TapsAccepted     int64
	TapsRejected     int64
	PointsMinted     int64
	UpgradesBought   int64
	CardsBought      int64
	PurchasesDenied  int64
	GrantsApplied    int64
	OfflineClaims    int64
	OfflineReconcile int64

	// Regeneration ticks
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Persistence
	SavesWritten     int64
	SaveErrors       int64
	SaveLatencySum   int64
	CorruptSnapshots int64
	EventsWritten    int64
	EventWriteErrors int64

	// Leaderboard sync
	SyncPushes int64
	SyncErrors int64

	// Sessions and WebSocket
	SessionsActive      int64
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64
	IntentsRejected     int64
	IntentsThrottled    int64

	StartTime time.Time
	mu        sync.RWMutex
}

var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTap records a tap attempt and the points it minted.
func (c *Collector) RecordTap(accepted bool, gained int64) {
	if !accepted {
		atomic.AddInt64(&c.TapsRejected, 1)
		return
	}
	atomic.AddInt64(&c.TapsAccepted, 1)
	atomic.AddInt64(&c.PointsMinted, gained)
}

// RecordUpgrade records an upgrade purchase attempt.
func (c *Collector) RecordUpgrade(ok bool) {
	if ok {
		atomic.AddInt64(&c.UpgradesBought, 1)
	} else {
		atomic.AddInt64(&c.PurchasesDenied, 1)
	}
}

// RecordCard records a card purchase attempt.
func (c *Collector) RecordCard(ok bool) {
	if ok {
		atomic.AddInt64(&c.CardsBought, 1)
	} else {
		atomic.AddInt64(&c.PurchasesDenied, 1)
	}
}

// RecordGrant records points entering through Grant.
func (c *Collector) RecordGrant(amount int64) {
	atomic.AddInt64(&c.GrantsApplied, 1)
	atomic.AddInt64(&c.PointsMinted, amount)
}

// RecordOfflineReconcile counts a completed reconciliation.
func (c *Collector) RecordOfflineReconcile() {
	atomic.AddInt64(&c.OfflineReconcile, 1)
}

// RecordOfflineClaim records a claimed idle reward.
func (c *Collector) RecordOfflineClaim(amount int64) {
	atomic.AddInt64(&c.OfflineClaims, 1)
	atomic.AddInt64(&c.PointsMinted, amount)
}

// RecordTick records a regeneration tick.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// racy max is acceptable here
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordSave records a save slot write.
func (c *Collector) RecordSave(latency time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&c.SaveErrors, 1)
		return
	}
	atomic.AddInt64(&c.SavesWritten, 1)
	atomic.AddInt64(&c.SaveLatencySum, int64(latency))
}

// RecordCorruptSnapshot counts a save slot that failed to decode.
func (c *Collector) RecordCorruptSnapshot() {
	atomic.AddInt64(&c.CorruptSnapshots, 1)
}

// RecordEventWrite records an audit event write.
func (c *Collector) RecordEventWrite(err error) {
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
		return
	}
	atomic.AddInt64(&c.EventsWritten, 1)
}

// RecordSync records a leaderboard push.
func (c *Collector) RecordSync(err error) {
	atomic.AddInt64(&c.SyncPushes, 1)
	if err != nil {
		atomic.AddInt64(&c.SyncErrors, 1)
	}
}

// RecordSession records session open/close.
func (c *Collector) RecordSession(delta int64) {
	atomic.AddInt64(&c.SessionsActive, delta)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordIntentRejected counts an intent that failed validation.
func (c *Collector) RecordIntentRejected() {
	atomic.AddInt64(&c.IntentsRejected, 1)
}

// RecordIntentThrottled counts an intent dropped by the rate limiter.
func (c *Collector) RecordIntentThrottled() {
	atomic.AddInt64(&c.IntentsThrottled, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	saves := atomic.LoadInt64(&c.SavesWritten)

	var tickAvg, saveAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if saves > 0 {
		saveAvg = float64(atomic.LoadInt64(&c.SaveLatencySum)) / float64(saves) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"economy": map[string]interface{}{
			"taps_accepted":     atomic.LoadInt64(&c.TapsAccepted),
			"taps_rejected":     atomic.LoadInt64(&c.TapsRejected),
			"points_minted":     atomic.LoadInt64(&c.PointsMinted),
			"upgrades_bought":   atomic.LoadInt64(&c.UpgradesBought),
			"cards_bought":      atomic.LoadInt64(&c.CardsBought),
			"purchases_denied":  atomic.LoadInt64(&c.PurchasesDenied),
			"grants":            atomic.LoadInt64(&c.GrantsApplied),
			"offline_reconcile": atomic.LoadInt64(&c.OfflineReconcile),
			"offline_claims":    atomic.LoadInt64(&c.OfflineClaims),
		},

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"persistence": map[string]interface{}{
			"saves":             saves,
			"save_errors":       atomic.LoadInt64(&c.SaveErrors),
			"avg_save_ms":       saveAvg,
			"corrupt_snapshots": atomic.LoadInt64(&c.CorruptSnapshots),
			"events_written":    atomic.LoadInt64(&c.EventsWritten),
			"event_errors":      atomic.LoadInt64(&c.EventWriteErrors),
		},

		"leaderboard": map[string]interface{}{
			"pushes": atomic.LoadInt64(&c.SyncPushes),
			"errors": atomic.LoadInt64(&c.SyncErrors),
		},

		"websocket": map[string]interface{}{
			"sessions_active":    atomic.LoadInt64(&c.SessionsActive),
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
			"intents_rejected":   atomic.LoadInt64(&c.IntentsRejected),
			"intents_throttled":  atomic.LoadInt64(&c.IntentsThrottled),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

type promMetric struct {
	name, help, kind string
	value            *int64
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector
		counters := []promMetric{
			{"basecaster_taps_accepted_total", "Accepted taps", "counter", &c.TapsAccepted},
			{"basecaster_taps_rejected_total", "Taps rejected for lack of energy", "counter", &c.TapsRejected},
			{"basecaster_points_minted_total", "Points entering the economy", "counter", &c.PointsMinted},
			{"basecaster_upgrades_bought_total", "Upgrade purchases", "counter", &c.UpgradesBought},
			{"basecaster_cards_bought_total", "Mining card purchases", "counter", &c.CardsBought},
			{"basecaster_purchases_denied_total", "Unaffordable or unknown purchases", "counter", &c.PurchasesDenied},
			{"basecaster_tick_count", "Regeneration ticks", "counter", &c.TickCount},
			{"basecaster_saves_total", "Save slot writes", "counter", &c.SavesWritten},
			{"basecaster_save_errors_total", "Failed save slot writes", "counter", &c.SaveErrors},
			{"basecaster_corrupt_snapshots_total", "Save slots replaced by fresh state", "counter", &c.CorruptSnapshots},
			{"basecaster_events_written_total", "Audit events persisted", "counter", &c.EventsWritten},
			{"basecaster_event_write_errors_total", "Audit event write errors", "counter", &c.EventWriteErrors},
			{"basecaster_sync_pushes_total", "Leaderboard pushes", "counter", &c.SyncPushes},
			{"basecaster_sync_errors_total", "Failed leaderboard pushes", "counter", &c.SyncErrors},
			{"basecaster_sessions", "Open player sessions", "gauge", &c.SessionsActive},
			{"basecaster_ws_connections", "Active WebSocket connections", "gauge", &c.WSConnectionsActive},
			{"basecaster_intents_rejected_total", "Invalid intents", "counter", &c.IntentsRejected},
			{"basecaster_intents_throttled_total", "Rate limited intents", "counter", &c.IntentsThrottled},
		}
		for _, m := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
			fmt.Fprintf(w, "%s %d\n\n", m.name, atomic.LoadInt64(m.value))
		}

		fmt.Fprintf(w, "# HELP basecaster_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE basecaster_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "basecaster_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP basecaster_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE basecaster_ws_messages_total counter\n")
		fmt.Fprintf(w, "basecaster_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "basecaster_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
