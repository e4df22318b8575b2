// Package storage - event_persister.go
// Adapter that lets the audit EventLog write through an EventRepository.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
)

// EventPersister translates audit events to stored rows.
type EventPersister struct {
	repo EventRepository
}

// NewEventPersister wraps repo as an events.EventPersister.
func NewEventPersister(repo EventRepository) *EventPersister {
	return &EventPersister{repo: repo}
}

// Append stores one event.
func (a *EventPersister) Append(ctx context.Context, event events.GameEvent) error {
	payload := "{}"
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			metrics.Get().RecordEventWrite(err)
			return fmt.Errorf("encode payload of %s: %w", event.ID, err)
		}
		payload = string(raw)
	}
	err := a.repo.Append(ctx, StoredEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		Payload:   payload,
	})
	metrics.Get().RecordEventWrite(err)
	return err
}
