package access

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"mediahub/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const signingKeyInfo = "mediahub/blob-read/v1/"

type grantClaims struct {
	jwt.RegisteredClaims
	Perm string `json:"perm"`
}

// SignedURLIssuer issues HS256-signed download URLs served by the local
// blob route. The signing key is derived per container from the account key.
type SignedURLIssuer struct {
	accountKey []byte
	publicBase string
	now        func() time.Time
}

var _ Issuer = (*SignedURLIssuer)(nil)

type SignedURLOptions struct {
	AccountKey string
	PublicBase string // e.g. "http://localhost:8080"
	Now        func() time.Time
}

func NewSignedURLIssuer(opts SignedURLOptions) (*SignedURLIssuer, error) {
	if strings.TrimSpace(opts.AccountKey) == "" {
		return nil, fmt.Errorf("account key is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SignedURLIssuer{
		accountKey: []byte(opts.AccountKey),
		publicBase: strings.TrimRight(opts.PublicBase, "/"),
		now:        now,
	}, nil
}

func (i *SignedURLIssuer) signingKey(container string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, i.accountKey, nil, []byte(signingKeyInfo+container))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}

func resource(container, blobKey string) string {
	return container + "/" + blobKey
}

func (i *SignedURLIssuer) IssueReadURL(_ context.Context, blobKey, container string, validity time.Duration) (Grant, error) {
	if validity <= 0 {
		return Grant{}, fmt.Errorf("validity must be positive, got %s", validity)
	}
	if !storage.ValidKey(blobKey) {
		return Grant{}, fmt.Errorf("invalid blob key %q", blobKey)
	}
	key, err := i.signingKey(container)
	if err != nil {
		return Grant{}, err
	}

	now := i.now().UTC()
	exp := jwt.NewNumericDate(now.Add(validity))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   resource(container, blobKey),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
		Perm: PermRead,
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return Grant{}, fmt.Errorf("sign grant: %w", err)
	}

	u := storage.JoinURL(i.publicBase, "blobs", container, blobKey) + "?" + url.Values{"sig": {signed}}.Encode()
	return Grant{URL: u, ExpiresAt: exp.Time.UTC()}, nil
}

// Verify checks that sig grants read access to blobKey in container at the
// current time.
func (i *SignedURLIssuer) Verify(container, blobKey, sig string) error {
	if strings.TrimSpace(sig) == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidGrant)
	}
	key, err := i.signingKey(container)
	if err != nil {
		return err
	}

	claims := &grantClaims{}
	_, err = jwt.ParseWithClaims(sig, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(resource(container, blobKey)),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", ErrInvalidGrant)
		}
		return fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	if claims.Perm != PermRead {
		return fmt.Errorf("%w: permission %q", ErrInvalidGrant, claims.Perm)
	}
	return nil
}
