// Package events provides the economy audit log.
// Every accepted mutation of a player's economy is appended here as an
// immutable record; regeneration ticks are not.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of an economy event.
type EventType string

const (
	EventTypeTap              EventType = "TAP"
	EventTypeUpgradePurchased EventType = "UPGRADE_PURCHASED"
	EventTypeCardPurchased    EventType = "CARD_PURCHASED"
	EventTypeGrant            EventType = "GRANT"
	EventTypeOfflineReconcile EventType = "OFFLINE_RECONCILED"
	EventTypeOfflineClaimed   EventType = "OFFLINE_CLAIMED"
	EventTypeDailyClaimed     EventType = "DAILY_CLAIMED"
	EventTypeSocialClaimed    EventType = "SOCIAL_CLAIMED"
	EventTypeReferralClaimed  EventType = "REFERRAL_CLAIMED"
)

// DefaultRetention is how many events the in-memory log keeps.
const DefaultRetention = 10000

// GameEvent is an immutable record of one economy mutation.
type GameEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(ctx context.Context, event GameEvent) error
}

// ErrorHandler receives persistence failures.
type ErrorHandler func(event GameEvent, err error)

// EventLog is the in-memory append-only log of recent economy events with an
// optional asynchronous write-through persister.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	retention int

	persister EventPersister
	queue     chan GameEvent
	onError   ErrorHandler
	dropped   int64
	done      chan struct{}
	startOnce sync.Once
}

// NewEventLog creates a new event log with an optional persister. Persistence
// starts once Start is called; until then events queue up to the buffer size.
func NewEventLog(persister EventPersister) *EventLog {
	return NewBufferedEventLog(persister, 1024)
}

// NewBufferedEventLog is NewEventLog with an explicit persistence queue size.
func NewBufferedEventLog(persister EventPersister, buffer int) *EventLog {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventLog{
		events:    make([]GameEvent, 0),
		retention: DefaultRetention,
		persister: persister,
		queue:     make(chan GameEvent, buffer),
		done:      make(chan struct{}),
	}
}

// SetRetention bounds the in-memory window.
func (el *EventLog) SetRetention(n int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if n > 0 {
		el.retention = n
	}
}

// OnError installs a persistence failure callback.
func (el *EventLog) OnError(h ErrorHandler) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onError = h
}

// Append adds a new event to the log. Events are immutable once appended.
// Missing ids and timestamps are filled in. Never blocks on persistence.
func (el *EventLog) Append(event GameEvent) GameEvent {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	if over := len(el.events) - el.retention; over > 0 {
		el.events = append(el.events[:0:0], el.events[over:]...)
	}
	el.mu.Unlock()

	if el.persister != nil {
		select {
		case el.queue <- event:
		default:
			el.mu.Lock()
			el.dropped++
			el.mu.Unlock()
		}
	}
	return event
}

// Start drains the persistence queue until ctx is cancelled, then flushes
// whatever is still queued. Call in a goroutine.
func (el *EventLog) Start(ctx context.Context) {
	if el.persister == nil {
		return
	}
	started := false
	el.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(el.done)

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-el.queue:
					el.persist(context.Background(), e)
				default:
					return
				}
			}
		case e := <-el.queue:
			// a dequeued event is written even if ctx is cancelled meanwhile
			el.persist(context.WithoutCancel(ctx), e)
		}
	}
}

// Wait blocks until a started persister loop has flushed and exited.
func (el *EventLog) Wait() {
	if el.persister == nil {
		return
	}
	<-el.done
}

func (el *EventLog) persist(ctx context.Context, e GameEvent) {
	if err := el.persister.Append(ctx, e); err != nil {
		el.mu.RLock()
		h := el.onError
		el.mu.RUnlock()
		if h != nil {
			h(e, err)
		}
	}
}

// Dropped returns how many events were not queued for persistence because the
// queue was full.
func (el *EventLog) Dropped() int64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.dropped
}

// GetByActor returns the retained events of one player.
func (el *EventLog) GetByActor(actorID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns the retained events of one type.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history in append order.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]GameEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Len returns the number of retained events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return time.Now().UTC().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
