package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBlobStore stores payloads on local disk under root/<container>/<key>.
// Content types live in a parallel tree under root/.meta and temp files
// under root/.tmp, so the container directory holds payloads only.
type LocalBlobStore struct {
	root       string
	container  string
	publicBase string
}

var _ BlobStore = (*LocalBlobStore)(nil)

type LocalOptions struct {
	Root       string
	Container  string
	PublicBase string // e.g. "http://localhost:8080/blobs"
}

func NewLocalBlobStore(opts LocalOptions) (*LocalBlobStore, error) {
	if strings.TrimSpace(opts.Container) == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if strings.HasPrefix(opts.Container, ".") || strings.ContainsAny(opts.Container, `/\`) {
		return nil, fmt.Errorf("invalid container name %q", opts.Container)
	}
	b := &LocalBlobStore{
		root:       opts.Root,
		container:  opts.Container,
		publicBase: opts.PublicBase,
	}
	if err := b.EnsureContainer(context.Background()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBlobStore) Container() string { return b.container }

const (
	metaDirName = ".meta"
	tmpDirName  = ".tmp"
)

func (b *LocalBlobStore) dir() string {
	return filepath.Join(b.root, b.container)
}

func (b *LocalBlobStore) metaDir() string {
	return filepath.Join(b.root, metaDirName, b.container)
}

func (b *LocalBlobStore) tmpDir() string {
	return filepath.Join(b.root, tmpDirName, b.container)
}

func (b *LocalBlobStore) EnsureContainer(_ context.Context) error {
	for _, dir := range []string{b.dir(), b.metaDir(), b.tmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create container %q: %w", b.container, err)
		}
	}
	return nil
}

// paths returns the payload path and its content-type path for key.
func (b *LocalBlobStore) paths(key string) (string, string, error) {
	if !ValidKey(key) {
		return "", "", fmt.Errorf("invalid blob key %q", key)
	}
	rel := filepath.FromSlash(key)
	return filepath.Join(b.dir(), rel), filepath.Join(b.metaDir(), rel), nil
}

func (b *LocalBlobStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	absPath, metaPath, err := b.paths(key)
	if err != nil {
		return "", err
	}
	if err := b.EnsureContainer(ctx); err != nil {
		return "", err
	}
	for _, p := range []string{absPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", fmt.Errorf("create blob dir: %w", err)
		}
	}
	if err := writeFileAtomic(b.tmpDir(), metaPath, []byte(contentType)); err != nil {
		return "", err
	}
	if err := writeFileAtomic(b.tmpDir(), absPath, body); err != nil {
		return "", err
	}
	return JoinURL(b.publicBase, b.container, key), nil
}

func (b *LocalBlobStore) Get(_ context.Context, key string) (Object, error) {
	absPath, metaPath, err := b.paths(key)
	if err != nil {
		return Object{}, err
	}
	body, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Object{}, fmt.Errorf("read blob %q: %w", key, err)
	}
	contentType := "application/octet-stream"
	if raw, err := os.ReadFile(metaPath); err == nil && len(raw) > 0 {
		contentType = string(raw)
	}
	return Object{Key: key, ContentType: contentType, Body: body}, nil
}

func (b *LocalBlobStore) Delete(_ context.Context, key string) error {
	absPath, metaPath, err := b.paths(key)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	_ = os.Remove(metaPath)
	return nil
}

func (b *LocalBlobStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	root := b.dir()
	var out []ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func writeFileAtomic(tmpDir, dst string, data []byte) (err error) {
	tmpFile, err := os.CreateTemp(tmpDir, "blob-*")
	if err != nil {
		return fmt.Errorf("create tmp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("close tmp file: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("move blob: %w", err)
	}
	return nil
}
