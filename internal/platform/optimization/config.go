// Package optimization provides concurrency tuning for high load.
package optimization

import (
	"runtime"
	"strings"
)

// Config holds tuned parameters for the runtime profile.
type Config struct {
	// Channel buffer sizes
	EventChannelBuffer int // audit log persistence queue
	ClientSendBuffer   int // per WebSocket

	// Connection pools
	DBMaxOpenConns int
	DBMaxIdleConns int
	PGMaxConns     int32

	// Rate limiting, per client
	MaxMessagesPerSecond int
	MessageBurst         int
	MaxClientsPerPlayer  int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		EventChannelBuffer: 1024,
		ClientSendBuffer:   64,

		// SQLite serialises writers; extra conns only help readers
		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,
		PGMaxConns:     int32(numCPU * 2),

		// a human finger does not tap faster than this
		MaxMessagesPerSecond: 20,
		MessageBurst:         40,
		MaxClientsPerPlayer:  4,
	}
}

// StressTestConfig returns aggressive settings for load testing with the agitator.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		EventChannelBuffer: 8192,
		ClientSendBuffer:   256,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,
		PGMaxConns:     int32(numCPU * 4),

		MaxMessagesPerSecond: 500,
		MessageBurst:         1000,
		MaxClientsPerPlayer:  16,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		EventChannelBuffer: 64,
		ClientSendBuffer:   8,

		DBMaxOpenConns: 2,
		DBMaxIdleConns: 1,
		PGMaxConns:     2,

		MaxMessagesPerSecond: 10,
		MessageBurst:         20,
		MaxClientsPerPlayer:  2,
	}
}

// ForProfile maps a profile name to its preset. Unknown names get the default.
func ForProfile(name string) *Config {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stress":
		return StressTestConfig()
	case "low", "dev":
		return LowResourceConfig()
	default:
		return DefaultConfig()
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseEventBuffer   bool
	IncreaseClientBuffer  bool
	IncreaseDBConnections bool
	RaiseRateLimit        bool
	Notes                 []string
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if maxLat, ok := tick["max_latency_ms"].(float64); ok && maxLat > 100 {
			rec.IncreaseEventBuffer = true
			rec.Notes = append(rec.Notes, "Regen tick latency exceeds 100ms - engines are contended")
		}
	}

	if p, ok := metrics["persistence"].(map[string]interface{}); ok {
		if avg, ok := p["avg_save_ms"].(float64); ok && avg > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Save latency exceeds 50ms - increase DB connections")
		}
		if errs, ok := p["event_errors"].(int64); ok && errs > 0 {
			rec.IncreaseEventBuffer = true
			rec.Notes = append(rec.Notes, "Audit event write errors detected - check the events table")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errs, ok := ws["errors"].(int64); ok && errs > 0 {
			rec.IncreaseClientBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
		if thr, ok := ws["intents_throttled"].(int64); ok && thr > 0 {
			rec.RaiseRateLimit = true
			rec.Notes = append(rec.Notes, "Intents throttled - clients exceed the per-second budget")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *Config, rec *Recommendations) *Config {
	if rec.IncreaseEventBuffer {
		config.EventChannelBuffer *= 2
	}
	if rec.IncreaseClientBuffer {
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	if rec.RaiseRateLimit {
		config.MaxMessagesPerSecond *= 2
		config.MessageBurst *= 2
	}
	return config
}
