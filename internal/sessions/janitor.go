package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Janitor periodically drops expired sessions from a Memory store.
type Janitor struct {
	store    *Memory
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	log      *slog.Logger
}

func NewJanitor(logger *slog.Logger, store *Memory, interval time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      logger.With(slog.String("component", "sessions.janitor")),
	}
}

// Start sweeps every interval until Shutdown is called.
func (j *Janitor) Start() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			if n := j.store.Sweep(); n > 0 {
				j.log.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

// Shutdown stops the sweep loop and waits for it to exit.
func (j *Janitor) Shutdown(ctx context.Context) error {
	j.once.Do(func() { close(j.stop) })
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions.Janitor.Shutdown: %w", ctx.Err())
	}
}
