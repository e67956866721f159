package storage

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has no payload in the container.
var ErrNotFound = errors.New("blob not found")

const (
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverMinio = "minio"
)

// Object is a fetched payload.
type Object struct {
	Key         string
	ContentType string
	Body        []byte
}

// ObjectInfo describes a stored payload without its bytes.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobStore is the interface for blob storage backends.
// Local-disk, S3 and MinIO stores implement it.
type BlobStore interface {
	// EnsureContainer creates the container if needed. Creating an existing
	// container is not an error.
	EnsureContainer(ctx context.Context) error

	// Put writes body under key, replacing any previous payload, and returns
	// a resolvable (non-credentialed) location for it.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// Get returns the payload stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)

	// Delete removes the payload under key or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns every key under prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Container is the namespace name objects live in.
	Container() string
}

// ValidKey reports whether key is a relative, slash separated path without
// parent references.
func ValidKey(key string) bool {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	if path.Clean(key) != key {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return false
		}
	}
	return true
}

// JoinURL appends the path-escaped segments of each part to base.
func JoinURL(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for _, p := range parts {
		for _, seg := range strings.Split(p, "/") {
			out += "/" + url.PathEscape(seg)
		}
	}
	return out
}
