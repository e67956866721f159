package access

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Issuer presigns GetObject requests with SigV4.
type S3Issuer struct {
	presign *s3.PresignClient
	now     func() time.Time
}

var _ Issuer = (*S3Issuer)(nil)

func NewS3Issuer(client *s3.Client, now func() time.Time) *S3Issuer {
	if now == nil {
		now = time.Now
	}
	return &S3Issuer{presign: s3.NewPresignClient(client), now: now}
}

func (i *S3Issuer) IssueReadURL(ctx context.Context, blobKey, container string, validity time.Duration) (Grant, error) {
	if validity <= 0 {
		return Grant{}, fmt.Errorf("validity must be positive, got %s", validity)
	}
	issuedAt := i.now().UTC()
	req, err := i.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(blobKey),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return Grant{}, fmt.Errorf("presign get %q: %w", blobKey, err)
	}
	return Grant{URL: req.URL, ExpiresAt: issuedAt.Add(validity)}, nil
}
