package access

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinioIssuer presigns GET URLs through the MinIO client.
type MinioIssuer struct {
	client *minio.Client
	now    func() time.Time
}

var _ Issuer = (*MinioIssuer)(nil)

func NewMinioIssuer(client *minio.Client, now func() time.Time) *MinioIssuer {
	if now == nil {
		now = time.Now
	}
	return &MinioIssuer{client: client, now: now}
}

func (i *MinioIssuer) IssueReadURL(ctx context.Context, blobKey, container string, validity time.Duration) (Grant, error) {
	if validity <= 0 {
		return Grant{}, fmt.Errorf("validity must be positive, got %s", validity)
	}
	issuedAt := i.now().UTC()
	u, err := i.client.PresignedGetObject(ctx, container, blobKey, validity, nil)
	if err != nil {
		return Grant{}, fmt.Errorf("presign get %q: %w", blobKey, err)
	}
	return Grant{URL: u.String(), ExpiresAt: issuedAt.Add(validity)}, nil
}
