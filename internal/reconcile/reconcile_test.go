package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mediahub/internal/service"

	"github.com/rs/zerolog"
)

type stubReconciler struct {
	calls   atomic.Int64
	block   chan struct{}
	err     error
	orphans int
}

func (s *stubReconciler) Reconcile(ctx context.Context, _ service.ReconcileOptions) (service.ReconcileReport, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return service.ReconcileReport{}, ctx.Err()
		}
	}
	return service.ReconcileReport{Orphans: make([]service.OrphanedBlob, s.orphans)}, s.err
}

func TestWorker_RunOnceWhenNoInterval(t *testing.T) {
	t.Parallel()

	rec := &stubReconciler{}
	worker := NewWorker(NewRunner(rec, service.ReconcileOptions{}, zerolog.Nop()), WorkerConfig{
		Enabled: true,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	if rec.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", rec.calls.Load())
	}
}

func TestWorker_RunRepeatedlyWithInterval(t *testing.T) {
	t.Parallel()

	rec := &stubReconciler{}
	worker := NewWorker(NewRunner(rec, service.ReconcileOptions{}, zerolog.Nop()), WorkerConfig{
		Enabled:  true,
		Interval: 15 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	if rec.calls.Load() < 2 {
		t.Fatalf("calls = %d, want >= 2", rec.calls.Load())
	}
}

func TestWorker_DisabledDoesNothing(t *testing.T) {
	t.Parallel()

	rec := &stubReconciler{}
	worker := NewWorker(NewRunner(rec, service.ReconcileOptions{}, zerolog.Nop()), WorkerConfig{
		Interval: time.Millisecond,
	}, zerolog.Nop())
	worker.Run(context.Background())

	if rec.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", rec.calls.Load())
	}
}

func TestRunner_RejectsOverlappingRuns(t *testing.T) {
	t.Parallel()

	rec := &stubReconciler{block: make(chan struct{})}
	runner := NewRunner(rec, service.ReconcileOptions{}, zerolog.Nop())

	if !runner.Start() {
		t.Fatal("Start() = false, want true")
	}
	if runner.Start() {
		t.Fatal("second Start() = true while running")
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
	if !runner.Status().Running {
		t.Fatal("Status().Running = false")
	}

	close(rec.block)
	deadline := time.Now().Add(time.Second)
	for runner.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(time.Millisecond)
	}
	if st := runner.Status(); st.LastRunID == "" || st.LastResult == nil || st.LastError != "" {
		t.Fatalf("Status() = %#v", st)
	}
}

func TestRunner_RecordsLastError(t *testing.T) {
	t.Parallel()

	rec := &stubReconciler{err: errors.New("list blobs: boom"), orphans: 1}
	runner := NewRunner(rec, service.ReconcileOptions{}, zerolog.Nop())

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil")
	}
	st := runner.Status()
	if st.Running || st.LastError != "list blobs: boom" {
		t.Fatalf("Status() = %#v", st)
	}
}
