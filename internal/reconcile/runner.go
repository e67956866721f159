package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"mediahub/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when a sweep is requested while one is in
// progress.
var ErrAlreadyRunning = errors.New("reconcile already running")

type Reconciler interface {
	Reconcile(context.Context, service.ReconcileOptions) (service.ReconcileReport, error)
}

// Status describes the current and most recent sweep.
type Status struct {
	Running    bool                     `json:"running"`
	LastRunID  string                   `json:"lastRunId,omitempty"`
	LastResult *service.ReconcileReport `json:"lastResult,omitempty"`
	LastError  string                   `json:"lastError,omitempty"`
}

// Runner serializes sweeps so the periodic worker and manual triggers never
// overlap.
type Runner struct {
	rec    Reconciler
	opts   service.ReconcileOptions
	logger zerolog.Logger

	mu         sync.Mutex
	running    bool
	lastRunID  string
	lastResult *service.ReconcileReport
	lastError  error
}

func NewRunner(rec Reconciler, opts service.ReconcileOptions, logger zerolog.Logger) *Runner {
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	return &Runner{
		rec:    rec,
		opts:   opts,
		logger: logger.With().Str("component", "reconcile").Logger(),
	}
}

// Run performs one sweep and waits for it.
func (r *Runner) Run(ctx context.Context) (service.ReconcileReport, error) {
	runID, ok := r.begin()
	if !ok {
		return service.ReconcileReport{}, ErrAlreadyRunning
	}
	return r.execute(ctx, runID)
}

// Start runs a sweep in the background. It reports false when one is
// already in progress.
func (r *Runner) Start() bool {
	runID, ok := r.begin()
	if !ok {
		return false
	}
	go func() {
		_, _ = r.execute(context.Background(), runID)
	}()
	return true
}

func (r *Runner) begin() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", false
	}
	r.running = true
	return uuid.NewString(), true
}

func (r *Runner) execute(ctx context.Context, runID string) (service.ReconcileReport, error) {
	log := r.logger.With().Str("run_id", runID).Logger()
	log.Info().Bool("repair", r.opts.Repair).Dur("grace", r.opts.Grace).Msg("reconcile started")
	start := time.Now()
	report, err := r.rec.Reconcile(ctx, r.opts)
	if err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("reconcile failed")
	} else {
		log.Info().
			Dur("took", time.Since(start)).
			Int("orphans", len(report.Orphans)).
			Int("dangling", len(report.Dangling)).
			Msg("reconcile finished")
	}

	r.mu.Lock()
	r.running = false
	r.lastRunID = runID
	r.lastResult = &report
	r.lastError = err
	r.mu.Unlock()
	return report, err
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	errStr := ""
	if r.lastError != nil {
		errStr = r.lastError.Error()
	}
	return Status{
		Running:    r.running,
		LastRunID:  r.lastRunID,
		LastResult: r.lastResult,
		LastError:  errStr,
	}
}
