package access

import (
	"context"
	"errors"
	"time"
)

// PermRead is the only permission an issuer grants.
const PermRead = "r"

// ErrInvalidGrant is returned when a presented credential does not
// authorize the requested read.
var ErrInvalidGrant = errors.New("invalid access grant")

// Grant is a time-limited, read-only URL for one blob.
type Grant struct {
	URL       string
	ExpiresAt time.Time
}

// Issuer mints read-only URLs for a single blob. It derives short-lived
// credentials from the long-lived storage credential without exposing it.
// Callers bound validity; issuers only require it to be positive.
type Issuer interface {
	IssueReadURL(ctx context.Context, blobKey, container string, validity time.Duration) (Grant, error)
}
