package handlers

import (
	"mediahub/internal/reconcile"
	"mediahub/internal/service"
	"mediahub/internal/storage"

	"github.com/rs/zerolog"
)

// BlobVerifier checks a signed download grant for a blob key.
type BlobVerifier interface {
	Verify(container, blobKey, sig string) error
}

// ReconcileTrigger starts sweeps in the background and reports on them.
type ReconcileTrigger interface {
	Start() bool
	Status() reconcile.Status
}

type Options struct {
	Service *service.Service
	Logger  zerolog.Logger

	// Blobs and Verifier serve signed downloads. Both are nil unless the
	// local driver is in use.
	Blobs    storage.BlobStore
	Verifier BlobVerifier

	Reconcile     ReconcileTrigger
	InternalToken string
}

type Handler struct {
	svc      *service.Service
	log      zerolog.Logger
	blobs    storage.BlobStore
	verifier BlobVerifier

	reconcile     ReconcileTrigger
	internalToken string
}

func New(opts Options) *Handler {
	return &Handler{
		svc:           opts.Service,
		log:           opts.Logger,
		blobs:         opts.Blobs,
		verifier:      opts.Verifier,
		reconcile:     opts.Reconcile,
		internalToken: opts.InternalToken,
	}
}

// ServesBlobs reports whether signed downloads are handled by this process.
func (h *Handler) ServesBlobs() bool {
	return h.blobs != nil && h.verifier != nil
}
