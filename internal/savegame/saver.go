package savegame

import (
	"context"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
)

// Saver writes one player's snapshots in the background. Submit never
// blocks; snapshots that arrive while a write is in flight coalesce so only
// the newest is written next.
type Saver struct {
	slots    *Slots
	playerID string
	logger   *logger.Logger
	timeout  time.Duration

	pending chan progress.Progress
	done    chan struct{}
}

// NewSaver creates a saver for playerID.
func NewSaver(slots *Slots, playerID string, log *logger.Logger) *Saver {
	if log == nil {
		log = logger.Discard()
	}
	return &Saver{
		slots:    slots,
		playerID: playerID,
		logger:   log,
		timeout:  5 * time.Second,
		pending:  make(chan progress.Progress, 1),
		done:     make(chan struct{}),
	}
}

// Submit queues p, replacing any snapshot not yet written.
func (s *Saver) Submit(p progress.Progress) {
	for {
		select {
		case s.pending <- p:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

// Run writes queued snapshots until ctx is cancelled, then writes whatever is
// still queued. Call in a goroutine.
func (s *Saver) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			select {
			case p := <-s.pending:
				s.write(context.Background(), p)
			default:
			}
			return
		case p := <-s.pending:
			s.write(context.WithoutCancel(ctx), p)
		}
	}
}

// Done is closed when Run has returned.
func (s *Saver) Done() <-chan struct{} {
	return s.done
}

func (s *Saver) write(ctx context.Context, p progress.Progress) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	err := s.slots.Save(ctx, s.playerID, p)
	metrics.Get().RecordSave(time.Since(started), err)
	if err != nil {
		s.logger.Errorf("save for %s failed: %v", s.playerID, err)
	}
}
