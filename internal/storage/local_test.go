package storage

import (
	"context"
	"errors"
	"testing"
)

func newTestLocalStore(t *testing.T) *LocalBlobStore {
	t.Helper()
	store, err := NewLocalBlobStore(LocalOptions{
		Root:       t.TempDir(),
		Container:  "media",
		PublicBase: "http://localhost:8080/blobs",
	})
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}
	return store
}

func TestLocalBlobStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	ctx := context.Background()

	loc, err := store.Put(ctx, "u1/abc-a b.png", []byte("hello"), "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := "http://localhost:8080/blobs/media/u1/abc-a%20b.png"; loc != want {
		t.Fatalf("location = %q, want %q", loc, want)
	}

	obj, err := store.Get(ctx, "u1/abc-a b.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Body) != "hello" {
		t.Fatalf("body = %q, want %q", obj.Body, "hello")
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("content type = %q, want image/png", obj.ContentType)
	}
}

func TestLocalBlobStore_PutOverwrites(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "u1/k", []byte("first"), "text/plain"); err != nil {
		t.Fatalf("Put() #1 error = %v", err)
	}
	if _, err := store.Put(ctx, "u1/k", []byte("second"), "text/plain"); err != nil {
		t.Fatalf("Put() #2 error = %v", err)
	}
	obj, err := store.Get(ctx, "u1/k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Body) != "second" {
		t.Fatalf("body = %q, want second", obj.Body)
	}
}

func TestLocalBlobStore_DeleteMissingIsNotFound(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "u1/k", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "u1/k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "u1/k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "u1/k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalBlobStore_EnsureContainerIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	for i := 0; i < 2; i++ {
		if err := store.EnsureContainer(context.Background()); err != nil {
			t.Fatalf("EnsureContainer() #%d error = %v", i+1, err)
		}
	}
}

func TestLocalBlobStore_ListReturnsPayloadsOnly(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	ctx := context.Background()

	for _, key := range []string{"u2/b", "u1/a", "u1/c"} {
		if _, err := store.Put(ctx, key, []byte(key), "text/plain"); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].Key != "u1/a" || all[2].Key != "u2/b" {
		t.Fatalf("List() = %#v", all)
	}

	scoped, err := store.List(ctx, "u1/")
	if err != nil {
		t.Fatalf("List(u1/) error = %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("List(u1/) len = %d, want 2", len(scoped))
	}
}

func TestLocalBlobStore_RejectsInvalidKeys(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "a//b"} {
		if _, err := store.Put(context.Background(), key, []byte("x"), "text/plain"); err == nil {
			t.Fatalf("Put(%q) error = nil, want error", key)
		}
	}
}

func TestLocalBlobStore_KeysNeverCollideWithBookkeeping(t *testing.T) {
	t.Parallel()
	store := newTestLocalStore(t)
	ctx := context.Background()

	keys := []string{".tmp/id-a.png", ".meta/id-a.png", "u1/id-notes.content-type"}
	for _, key := range keys {
		if _, err := store.Put(ctx, key, []byte(key), "text/plain"); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	listed, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != len(keys) {
		t.Fatalf("List() = %#v, want %d payloads", listed, len(keys))
	}
	for _, key := range keys {
		obj, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if string(obj.Body) != key || obj.ContentType != "text/plain" {
			t.Fatalf("Get(%q) = %q (%s)", key, obj.Body, obj.ContentType)
		}
	}

	if err := store.Delete(ctx, "u1/id-notes.content-type"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if listed, _ := store.List(ctx, "u1/"); len(listed) != 0 {
		t.Fatalf("List(u1/) after delete = %#v", listed)
	}
}

func TestNewLocalBlobStore_RejectsReservedContainers(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", ".meta", ".tmp", "a/b"} {
		if _, err := NewLocalBlobStore(LocalOptions{Root: t.TempDir(), Container: name}); err == nil {
			t.Fatalf("NewLocalBlobStore(%q) error = nil, want error", name)
		}
	}
}

func TestValidKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  string
		want bool
	}{
		{"u1/id-a.png", true},
		{"plain", true},
		{"", false},
		{"/lead", false},
		{"trail/", false},
		{"a/./b", false},
		{"a\\b", false},
		{"..", false},
	}
	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.want {
			t.Fatalf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
