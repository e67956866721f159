package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mediahub/internal/access"
	"mediahub/internal/storage"
	"mediahub/internal/store"

	"github.com/rs/zerolog"
)

var errInjected = errors.New("injected failure")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeBlob struct {
	body        []byte
	contentType string
	modified    time.Time
}

// fakeBlobs is an in-memory BlobStore with failure injection.
type fakeBlobs struct {
	mu      sync.Mutex
	clock   *fakeClock
	objects map[string]fakeBlob

	failPut    error
	failDelete error
	failList   error
}

func newFakeBlobs(clock *fakeClock) *fakeBlobs {
	return &fakeBlobs{clock: clock, objects: map[string]fakeBlob{}}
}

func (f *fakeBlobs) Container() string { return "media" }

func (f *fakeBlobs) EnsureContainer(context.Context) error { return nil }

func (f *fakeBlobs) Put(_ context.Context, key string, body []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return "", f.failPut
	}
	f.objects[key] = fakeBlob{body: append([]byte(nil), body...), contentType: contentType, modified: f.clock.Now()}
	return "http://blobs.test/media/" + key, nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrNotFound
	}
	return storage.Object{Key: key, ContentType: obj.contentType, Body: obj.body}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	var out []storage.ObjectInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v.body)), LastModified: v.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeIndex wraps the memory index with failure injection.
type fakeIndex struct {
	*store.MemoryStore

	failUpsert error
	failDelete error
}

func (f *fakeIndex) Upsert(ctx context.Context, rec store.Record) error {
	if f.failUpsert != nil {
		return f.failUpsert
	}
	return f.MemoryStore.Upsert(ctx, rec)
}

func (f *fakeIndex) Delete(ctx context.Context, ownerID, mediaID string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.MemoryStore.Delete(ctx, ownerID, mediaID)
}

// countingIssuer counts calls and delegates to a signed-URL issuer.
type countingIssuer struct {
	mu    sync.Mutex
	calls int
	inner access.Issuer
}

func (c *countingIssuer) IssueReadURL(ctx context.Context, blobKey, container string, validity time.Duration) (access.Grant, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.IssueReadURL(ctx, blobKey, container, validity)
}

func (c *countingIssuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type harness struct {
	svc    *Service
	index  *fakeIndex
	blobs  *fakeBlobs
	issuer *countingIssuer
	signer *access.SignedURLIssuer
	clock  *fakeClock

	mu    sync.Mutex
	steps []string
}

func (h *harness) trace(op, step string) {
	h.mu.Lock()
	h.steps = append(h.steps, op+":"+step)
	h.mu.Unlock()
}

func (h *harness) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.steps...)
}

func (h *harness) reset() {
	h.mu.Lock()
	h.steps = nil
	h.mu.Unlock()
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	signer, err := access.NewSignedURLIssuer(access.SignedURLOptions{
		AccountKey: "test-account-key",
		PublicBase: "http://localhost:8080",
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewSignedURLIssuer() error = %v", err)
	}
	h := &harness{
		index:  &fakeIndex{MemoryStore: store.NewMemoryStore()},
		blobs:  newFakeBlobs(clock),
		issuer: &countingIssuer{inner: signer},
		signer: signer,
		clock:  clock,
	}
	opts := Options{
		Index:  h.index,
		Blobs:  h.blobs,
		Issuer: h.issuer,
		Logger: zerolog.Nop(),
		Now:    clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.svc = New(opts)
	h.svc.trace = h.trace
	return h
}

func (h *harness) create(t *testing.T, owner, filename string) CreateResult {
	t.Helper()
	res, err := h.svc.Create(context.Background(), CreateInput{
		OwnerID:     owner,
		Filename:    filename,
		ContentType: "image/png",
		Caption:     "cap",
		Payload:     []byte("0123456789abcdefg"),
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", owner, err)
	}
	return res
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
