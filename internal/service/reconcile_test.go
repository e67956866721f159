package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediahub/internal/store"
)

// seedDivergence leaves one healthy record, one orphaned blob and one
// dangling record behind.
func seedDivergence(t *testing.T, h *harness) (healthy, orphanKey string, dangling store.Record) {
	t.Helper()
	ctx := context.Background()
	healthy = h.create(t, "u1", "ok.png").MediaID

	if _, err := h.blobs.Put(ctx, "u1/orphan-x.png", []byte("x"), "image/png"); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}
	orphanKey = "u1/orphan-x.png"

	dangling = store.Record{
		OwnerID:   "u2",
		MediaID:   "gone",
		Filename:  "gone.png",
		BlobKey:   "u2/gone-gone.png",
		CreatedAt: h.clock.Now(),
		UpdatedAt: h.clock.Now(),
	}
	if err := h.index.MemoryStore.Upsert(ctx, dangling); err != nil {
		t.Fatalf("seed dangling: %v", err)
	}
	return healthy, orphanKey, dangling
}

func TestReconcile_ReportsWithoutRepair(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, orphanKey, dangling := seedDivergence(t, h)
	h.clock.Advance(2 * time.Hour)

	report, err := h.svc.Reconcile(context.Background(), ReconcileOptions{Grace: time.Hour})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Records != 2 || report.Blobs != 2 {
		t.Fatalf("records/blobs = %d/%d, want 2/2", report.Records, report.Blobs)
	}
	if len(report.Orphans) != 1 || report.Orphans[0].BlobKey != orphanKey || report.Orphans[0].Repaired {
		t.Fatalf("Orphans = %#v", report.Orphans)
	}
	if len(report.Dangling) != 1 || report.Dangling[0].MediaID != dangling.MediaID || report.Dangling[0].Repaired {
		t.Fatalf("Dangling = %#v", report.Dangling)
	}
	if !h.blobs.has(orphanKey) {
		t.Fatal("report-only sweep deleted a blob")
	}
}

func TestReconcile_RepairsOldDivergence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	healthy, orphanKey, dangling := seedDivergence(t, h)
	h.clock.Advance(2 * time.Hour)

	report, err := h.svc.Reconcile(context.Background(), ReconcileOptions{Repair: true, Grace: time.Hour})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !report.Orphans[0].Repaired || !report.Dangling[0].Repaired {
		t.Fatalf("report = %#v", report)
	}
	if h.blobs.has(orphanKey) {
		t.Fatal("orphaned blob survived repair")
	}
	if _, err := h.svc.Get(context.Background(), dangling.OwnerID, dangling.MediaID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dangling record survived repair: %v", err)
	}
	if _, err := h.svc.Fetch(context.Background(), "u1", healthy); err != nil {
		t.Fatalf("healthy media damaged: %v", err)
	}
}

func TestReconcile_SkipsRecentWrites(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, orphanKey, _ := seedDivergence(t, h)

	report, err := h.svc.Reconcile(context.Background(), ReconcileOptions{Repair: true, Grace: time.Hour})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.Orphans) != 0 || len(report.Dangling) != 0 || report.Skipped != 2 {
		t.Fatalf("report = %#v", report)
	}
	if !h.blobs.has(orphanKey) {
		t.Fatal("in-flight blob deleted")
	}
}

func TestReconcile_ListFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.blobs.failList = errInjected

	if _, err := h.svc.Reconcile(context.Background(), ReconcileOptions{}); !errors.Is(err, ErrBackend) {
		t.Fatalf("Reconcile() error = %v, want ErrBackend", err)
	}
}
