package worker

import (
	"context"
	"log/slog"
	"time"
)

// Evictor drops sessions that have been idle for longer than ttl.
type Evictor interface {
	EvictIdle(ttl time.Duration) int
}

// Worker periodically evicts idle composing sessions.
type Worker struct {
	evictor  Evictor
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// New creates a new Worker.
func New(evictor Evictor, ttl, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{evictor: evictor, ttl: ttl, interval: interval, logger: logger}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("session reaper started", "interval", w.interval.String(), "ttl", w.ttl.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session reaper stopped")
			return
		default:
		}

		if n := w.evictor.EvictIdle(w.ttl); n > 0 {
			w.logger.Info("evicted idle sessions", "count", n)
		}
		w.sleep(ctx)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}
