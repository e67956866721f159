package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type WorkerConfig struct {
	Enabled      bool
	StartupDelay time.Duration
	Interval     time.Duration
}

// Worker runs the sweep after a startup delay and then on every interval
// until its context is cancelled.
type Worker struct {
	runner *Runner
	cfg    WorkerConfig
	logger zerolog.Logger
}

func NewWorker(runner *Runner, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Worker{
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "reconcile-worker").Logger(),
	}
}

func (w *Worker) Run(ctx context.Context) {
	if !w.cfg.Enabled || w.runner == nil {
		return
	}
	if w.cfg.StartupDelay > 0 {
		timer := time.NewTimer(w.cfg.StartupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	w.runOnce(ctx)
	if w.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	_, err := w.runner.Run(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		w.logger.Info().Msg("previous sweep still running, skipping tick")
	}
}
