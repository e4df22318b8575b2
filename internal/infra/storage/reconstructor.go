// Package storage - reconstructor.go
// Activity recap: rebuilds a player's earning history from the audit log.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Reconstructor folds persisted audit events into summaries. It is used for
// the "while you were away" recap and for cross-checking a save slot against
// the ledger.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new recap builder.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// Ledger is what the audit log says a player earned and spent.
type Ledger struct {
	PlayerID       string `json:"player_id"`
	Taps           int64  `json:"taps"`
	Tapped         int64  `json:"tapped"`
	Granted        int64  `json:"granted"`
	OfflineClaimed int64  `json:"offline_claimed"`
	Spent          int64  `json:"spent"`
	Events         int    `json:"events"`
}

// Earned is the lifetime total implied by the ledger.
func (l Ledger) Earned() int64 {
	return l.Tapped + l.Granted + l.OfflineClaimed
}

// RecapEvent is a simplified event for the activity feed.
type RecapEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Delta     int64  `json:"delta"` // points in (+) or out (-)
}

// RebuildLedger folds up to limit of a player's latest events.
func (r *Reconstructor) RebuildLedger(ctx context.Context, playerID string, limit int) (*Ledger, error) {
	events, err := r.eventRepo.GetByActorID(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for player: %w", err)
	}
	l := &Ledger{PlayerID: playerID, Events: len(events)}
	for _, e := range events {
		p := decodePayload(e.Payload)
		switch e.EventType {
		case "TAP":
			l.Taps++
			l.Tapped += p.num("gained")
		case "GRANT":
			l.Granted += p.num("amount")
		case "OFFLINE_CLAIMED":
			l.OfflineClaimed += p.num("amount")
		case "UPGRADE_PURCHASED", "CARD_PURCHASED":
			l.Spent += p.num("cost")
		}
	}
	return l, nil
}

// GenerateRecap turns a player's latest events into feed lines. Consecutive
// taps collapse into one line.
func (r *Reconstructor) GenerateRecap(ctx context.Context, playerID string, limit int) ([]RecapEvent, error) {
	events, err := r.eventRepo.GetByActorID(ctx, playerID, limit)
	if err != nil {
		return nil, err
	}

	recap := make([]RecapEvent, 0, len(events))
	tapRun, tapCount := -1, 0
	for _, e := range events {
		p := decodePayload(e.Payload)
		ts := e.Timestamp.UTC().Format(time.RFC3339)

		if e.EventType == "TAP" {
			if tapRun < 0 {
				recap = append(recap, RecapEvent{Timestamp: ts, EventType: e.EventType})
				tapRun, tapCount = len(recap)-1, 0
			}
			tapCount++
			recap[tapRun].Delta += p.num("gained")
			recap[tapRun].Summary = fmt.Sprintf("%d taps", tapCount)
			if tapCount == 1 {
				recap[tapRun].Summary = "1 tap"
			}
			continue
		}
		tapRun = -1

		line := RecapEvent{Timestamp: ts, EventType: e.EventType}
		switch e.EventType {
		case "UPGRADE_PURCHASED":
			line.Summary = fmt.Sprintf("%s upgrade to level %d", p.str("track"), p.num("level"))
			line.Delta = -p.num("cost")
		case "CARD_PURCHASED":
			line.Summary = fmt.Sprintf("%s to level %d", p.str("card_id"), p.num("level"))
			line.Delta = -p.num("cost")
		case "GRANT":
			line.Summary = "reward"
			if reason := p.str("reason"); reason != "" {
				line.Summary = reason + " reward"
			}
			line.Delta = p.num("amount")
		case "OFFLINE_CLAIMED":
			line.Summary = "offline earnings claimed"
			line.Delta = p.num("amount")
		case "OFFLINE_RECONCILED":
			line.Summary = fmt.Sprintf("away for %ds", p.num("elapsed_seconds"))
		default:
			line.Summary = e.EventType
		}
		recap = append(recap, line)
	}
	return recap, nil
}

type payload map[string]any

func decodePayload(raw string) payload {
	var p payload
	if raw == "" {
		return p
	}
	_ = json.Unmarshal([]byte(raw), &p)
	return p
}

func (p payload) num(key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (p payload) str(key string) string {
	s, _ := p[key].(string)
	return s
}
