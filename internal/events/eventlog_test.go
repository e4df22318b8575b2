package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []GameEvent
	fail   bool
}

func (p *recordingPersister) Append(_ context.Context, e GameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	el := NewEventLog(nil)
	e := el.Append(GameEvent{Type: EventTypeTap, ActorID: "p1"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, 1, el.Len())
}

func TestFilters(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeTap, ActorID: "p1"})
	el.Append(GameEvent{Type: EventTypeGrant, ActorID: "p2"})
	el.Append(GameEvent{Type: EventTypeTap, ActorID: "p2"})

	assert.Len(t, el.GetByActor("p2"), 2)
	assert.Len(t, el.GetByType(EventTypeTap), 2)
	assert.Len(t, el.Replay(), 3)
}

func TestRetentionDropsOldest(t *testing.T) {
	el := NewEventLog(nil)
	el.SetRetention(2)
	el.Append(GameEvent{ID: "a"})
	el.Append(GameEvent{ID: "b"})
	el.Append(GameEvent{ID: "c"})

	got := el.Replay()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestPersisterReceivesEventsAndFlushesOnStop(t *testing.T) {
	p := &recordingPersister{}
	el := NewEventLog(p)
	ctx, cancel := context.WithCancel(context.Background())
	go el.Start(ctx)

	for i := 0; i < 5; i++ {
		el.Append(GameEvent{Type: EventTypeTap, ActorID: "p1"})
	}
	require.Eventually(t, func() bool { return p.count() == 5 }, time.Second, 5*time.Millisecond)

	el.Append(GameEvent{Type: EventTypeGrant, ActorID: "p1"})
	cancel()
	el.Wait()
	assert.Equal(t, 6, p.count())
}

func TestPersisterErrorsReachHandler(t *testing.T) {
	p := &recordingPersister{fail: true}
	el := NewEventLog(p)
	var mu sync.Mutex
	var failures int
	el.OnError(func(GameEvent, error) {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go el.Start(ctx)
	el.Append(GameEvent{Type: EventTypeTap})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	el.Wait()
}
