package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func seedRecord(owner, id string) Record {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		OwnerID:      owner,
		MediaID:      id,
		Filename:     "a.png",
		ContentType:  "image/png",
		Caption:      "first",
		BlobKey:      owner + "/" + id + "-a.png",
		BlobLocation: "http://blobs/" + owner + "/" + id + "-a.png",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestMemoryStore_MergeUpdatesOnlyNamedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	rec := seedRecord("u1", "m1")
	if err := m.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	later := rec.CreatedAt.Add(time.Hour)
	if err := m.Merge(ctx, "u1", "m1", Fields{Caption: strPtr("second")}, later); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got, err := m.Get(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Caption != "second" {
		t.Fatalf("Caption = %q, want second", got.Caption)
	}
	if got.Filename != rec.Filename || got.BlobKey != rec.BlobKey || got.ContentType != rec.ContentType {
		t.Fatalf("untouched fields changed: %#v", got)
	}
	if !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("timestamps = %v/%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestMemoryStore_MergeMissingIsNotFound(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	err := m.Merge(context.Background(), "u1", "nope", Fields{Filename: strPtr("b.png")}, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Merge() error = %v, want ErrNotFound", err)
	}
	if recs, _ := m.ListAll(context.Background(), 0); len(recs) != 0 {
		t.Fatalf("Merge inserted a row: %#v", recs)
	}
}

func TestMemoryStore_UpsertReplacesWholeRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	rec := seedRecord("u1", "m1")
	_ = m.Upsert(ctx, rec)

	rec.Caption = ""
	rec.Filename = "z.png"
	if err := m.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, _ := m.Get(ctx, "u1", "m1")
	if got.Caption != "" || got.Filename != "z.png" {
		t.Fatalf("Upsert did not replace: %#v", got)
	}
}

func TestMemoryStore_ListByOwnerIsPartitionScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	for _, r := range []Record{seedRecord("u1", "m2"), seedRecord("u2", "m9"), seedRecord("u1", "m1")} {
		_ = m.Upsert(ctx, r)
	}

	recs, err := m.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(recs) != 2 || recs[0].MediaID != "m1" || recs[1].MediaID != "m2" {
		t.Fatalf("ListByOwner() = %#v", recs)
	}

	all, _ := m.ListAll(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("ListAll() len = %d, want 3", len(all))
	}
	limited, _ := m.ListAll(ctx, 2)
	if len(limited) != 2 {
		t.Fatalf("ListAll(2) len = %d, want 2", len(limited))
	}
}

func TestMemoryStore_DeleteTwice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.Upsert(ctx, seedRecord("u1", "m1"))

	if err := m.Delete(ctx, "u1", "m1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, "u1", "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(ctx, "u1", "m1"); !IsNotFound(err) {
		t.Fatalf("Get() error = %v, want not found", err)
	}
}
