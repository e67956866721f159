package service

import (
	"time"

	"mediahub/internal/access"
	"mediahub/internal/mediaid"
	"mediahub/internal/storage"
	"mediahub/internal/store"

	"github.com/rs/zerolog"
)

const (
	DefaultFilename       = "upload.bin"
	DefaultContentType    = "application/octet-stream"
	DefaultAccessValidity = 15 * time.Minute
	MaxAccessValidity     = 7 * 24 * time.Hour
	DefaultListAllLimit   = 1000
	DefaultMaxUploadBytes = 128 << 20
)

// Options wires a Service to its backends. Index, Blobs and Issuer are
// required; zero limits fall back to the package defaults.
type Options struct {
	Index  store.Index
	Blobs  storage.BlobStore
	Issuer access.Issuer
	Logger zerolog.Logger

	Now   func() time.Time
	NewID func() string

	MaxUploadBytes  int64
	ListAllLimit    int
	DefaultValidity time.Duration
	MaxValidity     time.Duration
}

// Service coordinates the blob store, the metadata index and the access
// issuer. It is the only component that knows about more than one backend
// and holds no mutable state of its own.
type Service struct {
	index  store.Index
	blobs  storage.BlobStore
	issuer access.Issuer
	log    zerolog.Logger

	now   func() time.Time
	newID func() string
	trace trace

	maxUploadBytes  int64
	listAllLimit    int
	defaultValidity time.Duration
	maxValidity     time.Duration
}

func New(opts Options) *Service {
	svc := &Service{
		index:           opts.Index,
		blobs:           opts.Blobs,
		issuer:          opts.Issuer,
		log:             opts.Logger.With().Str("component", "media").Logger(),
		now:             opts.Now,
		newID:           opts.NewID,
		maxUploadBytes:  opts.MaxUploadBytes,
		listAllLimit:    opts.ListAllLimit,
		defaultValidity: opts.DefaultValidity,
		maxValidity:     opts.MaxValidity,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = mediaid.New
	}
	if svc.maxUploadBytes <= 0 {
		svc.maxUploadBytes = DefaultMaxUploadBytes
	}
	if svc.listAllLimit <= 0 {
		svc.listAllLimit = DefaultListAllLimit
	}
	if svc.defaultValidity <= 0 {
		svc.defaultValidity = DefaultAccessValidity
	}
	if svc.maxValidity <= 0 {
		svc.maxValidity = MaxAccessValidity
	}
	if svc.defaultValidity > svc.maxValidity {
		svc.defaultValidity = svc.maxValidity
	}
	return svc
}
