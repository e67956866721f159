package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
)

// MinioBlobStore implements BlobStore on a MinIO (or any S3-compatible) backend
// through minio-go.
type MinioBlobStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

var _ BlobStore = (*MinioBlobStore)(nil)

type MinioOptions struct {
	Client     *minio.Client
	Bucket     string
	PublicBase string
}

func NewMinioBlobStore(opts MinioOptions) *MinioBlobStore {
	return &MinioBlobStore{
		client:     opts.Client,
		bucket:     opts.Bucket,
		publicBase: opts.PublicBase,
	}
}

func (s *MinioBlobStore) Container() string { return s.bucket }

func (s *MinioBlobStore) EnsureContainer(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioBlobStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return JoinURL(s.publicBase, key), nil
}

func (s *MinioBlobStore) Get(ctx context.Context, key string) (Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, s.translate("get", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Object{}, s.translate("stat", key, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return Object{}, s.translate("read", key, err)
	}
	return Object{Key: key, ContentType: info.ContentType, Body: body}, nil
}

// Delete stats first: RemoveObject succeeds for missing keys.
func (s *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return s.translate("stat", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

func (s *MinioBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified.UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MinioBlobStore) translate(op, key string, err error) error {
	if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NotFound" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("%s object %q: %w", op, key, err)
}
