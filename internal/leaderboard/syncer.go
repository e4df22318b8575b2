package leaderboard

import (
	"context"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
)

// Source yields the row to push. ok is false while the player has no profile;
// nothing is pushed then.
type Source func(ctx context.Context) (e Entry, ok bool)

// Syncer mirrors one player's lifetime total to a Store: once as soon as a
// profile is established, then on every interval. Failures are logged and
// counted; the next attempt is simply the next interval.
type Syncer struct {
	store    Store
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
	onPushed func()

	trigger chan struct{}
	done    chan struct{}
}

// NewSyncer creates a syncer. Zero interval/timeout default to 10s/5s.
func NewSyncer(store Store, source Source, interval, timeout time.Duration, log *logger.Logger) *Syncer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Syncer{
		store:    store,
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   log,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// OnPushed installs a hook run after every successful push.
func (s *Syncer) OnPushed(fn func()) {
	s.onPushed = fn
}

// Establish requests an immediate push, e.g. right after the profile is saved.
func (s *Syncer) Establish() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run pushes on Establish and on every tick until ctx is cancelled, then
// makes one last push. Call in a goroutine.
func (s *Syncer) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Push(context.Background())
			return
		case <-s.trigger:
			s.Push(context.WithoutCancel(ctx))
		case <-ticker.C:
			s.Push(context.WithoutCancel(ctx))
		}
	}
}

// Done is closed when Run has returned.
func (s *Syncer) Done() <-chan struct{} {
	return s.done
}

// Push performs one bounded upsert. It reports whether a row was written.
func (s *Syncer) Push(ctx context.Context) bool {
	entry, ok := s.source(ctx)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Upsert(ctx, entry)
	metrics.Get().RecordSync(err)
	if err != nil {
		s.logger.Warnf("leaderboard push for %s failed: %v", entry.Identity, err)
		return false
	}
	if s.onPushed != nil {
		s.onPushed()
	}
	return true
}
