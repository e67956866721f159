package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediahub/internal/metrics"
	"mediahub/internal/storage"
	"mediahub/internal/store"

	"golang.org/x/sync/errgroup"
)

type ReconcileOptions struct {
	// Repair deletes the divergences found. Without it the sweep only reports.
	Repair bool
	// Grace skips anything younger than this, so in-flight creates are
	// never mistaken for divergence.
	Grace time.Duration
}

type OrphanedBlob struct {
	BlobKey      string    `json:"blobName"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Repaired     bool      `json:"repaired"`
}

type DanglingRecord struct {
	OwnerID  string `json:"user_id"`
	MediaID  string `json:"id"`
	BlobKey  string `json:"blobName"`
	Repaired bool   `json:"repaired"`
}

type ReconcileReport struct {
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Records    int              `json:"records"`
	Blobs      int              `json:"blobs"`
	Orphans    []OrphanedBlob   `json:"orphanedBlobs"`
	Dangling   []DanglingRecord `json:"danglingRecords"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
}

// Reconcile compares every record with every stored payload and reports
// payloads no record references and records whose payload is gone.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) (report ReconcileReport, err error) {
	defer observe("reconcile", &err)

	report.StartedAt = s.now().UTC()
	log := s.log.With().Str("op", "reconcile").Bool("repair", opts.Repair).Logger()

	var (
		recs  []store.Record
		blobs []storage.ObjectInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recs, err = s.index.ListAll(gctx, 0)
		if err != nil {
			return backendErr("list-records", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		blobs, err = s.blobs.List(gctx, "")
		if err != nil {
			return backendErr("list-blobs", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return ReconcileReport{}, err
	}
	report.Records = len(recs)
	report.Blobs = len(blobs)

	referenced := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.BlobKey != "" {
			referenced[rec.BlobKey] = struct{}{}
		}
	}
	stored := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		stored[b.Key] = struct{}{}
	}

	cutoff := report.StartedAt.Add(-opts.Grace)

	for _, b := range blobs {
		if _, ok := referenced[b.Key]; ok {
			continue
		}
		orphan := OrphanedBlob{BlobKey: b.Key, Size: b.Size, LastModified: b.LastModified}
		if b.LastModified.After(cutoff) {
			report.Skipped++
			continue
		}
		if opts.Repair {
			if err := s.blobs.Delete(ctx, b.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				report.Failed++
				log.Warn().Err(err).Str("blob_key", b.Key).Msg("delete orphaned blob failed")
			} else {
				orphan.Repaired = true
			}
		}
		report.Orphans = append(report.Orphans, orphan)
	}

	for _, rec := range recs {
		if _, ok := stored[rec.BlobKey]; ok && rec.BlobKey != "" {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			report.Skipped++
			continue
		}
		dangling := DanglingRecord{OwnerID: rec.OwnerID, MediaID: rec.MediaID, BlobKey: rec.BlobKey}
		if opts.Repair {
			if err := s.index.Delete(ctx, rec.OwnerID, rec.MediaID); err != nil && !store.IsNotFound(err) {
				report.Failed++
				log.Warn().Err(err).Str("owner_id", rec.OwnerID).Str("media_id", rec.MediaID).Msg("delete dangling record failed")
			} else {
				dangling.Repaired = true
			}
		}
		report.Dangling = append(report.Dangling, dangling)
	}

	report.FinishedAt = s.now().UTC()
	metrics.ReconcileFindings.WithLabelValues(DivergenceOrphanedBlob).Set(float64(len(report.Orphans)))
	metrics.ReconcileFindings.WithLabelValues(DivergenceDanglingRecord).Set(float64(len(report.Dangling)))
	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	metrics.ReconcileRuns.WithLabelValues(result).Inc()

	log.Info().
		Int("records", report.Records).
		Int("blobs", report.Blobs).
		Int("orphans", len(report.Orphans)).
		Int("dangling", len(report.Dangling)).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("reconcile finished")
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d repairs failed", ErrBackend, report.Failed)
	}
	return report, nil
}
