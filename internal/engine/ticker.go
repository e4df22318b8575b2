package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
)

// Regenerator is anything that can take a regeneration tick.
type Regenerator interface {
	TickRegeneration()
}

// RegenTicker drives TickRegeneration on a fixed interval.
type RegenTicker struct {
	target   Regenerator
	interval time.Duration
	logger   *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegenTicker creates a ticker; interval defaults to one second.
func NewRegenTicker(target Regenerator, interval time.Duration, log *logger.Logger) *RegenTicker {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RegenTicker{
		target:   target,
		interval: interval,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start runs until ctx is cancelled or Stop is called. Call in a goroutine.
func (t *RegenTicker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case <-ticker.C:
			started := time.Now()
			t.target.TickRegeneration()
			metrics.Get().RecordTick(time.Since(started))
		}
	}
}

// Stop ends the loop. Safe to call more than once.
func (t *RegenTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}
