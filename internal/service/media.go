package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"mediahub/internal/access"
	"mediahub/internal/metrics"
	"mediahub/internal/storage"
	"mediahub/internal/store"

	"github.com/gabriel-vasile/mimetype"
)

type CreateInput struct {
	OwnerID     string
	Caption     string
	Filename    string
	ContentType string
	Payload     []byte
}

type CreateResult struct {
	MediaID      string
	OwnerID      string
	BlobLocation string
}

// UpdateInput carries the mutable fields. Nil means "leave unchanged".
type UpdateInput struct {
	Caption  *string
	Filename *string
}

type AccessRequest struct {
	OwnerID string
	MediaID string
	// ValidityMinutes defaults to the service default when nil.
	ValidityMinutes *int
}

type Payload struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Create writes the payload first and the record second. If the record
// write fails the payload stays behind as an orphan and the error is
// reported as a backend error.
func (s *Service) Create(ctx context.Context, in CreateInput) (res CreateResult, err error) {
	defer observe("create", &err)

	ownerID, err := normalizeOwner(in.OwnerID)
	if err != nil {
		return CreateResult{}, err
	}
	if len(in.Payload) == 0 {
		return CreateResult{}, fmt.Errorf("%w: payload is required", ErrInvalidInput)
	}
	if int64(len(in.Payload)) > s.maxUploadBytes {
		return CreateResult{}, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidInput, s.maxUploadBytes)
	}

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = DefaultFilename
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = detectContentType(in.Payload)
	}

	mediaID := s.newID()
	now := s.now().UTC()
	rec := store.Record{
		OwnerID:     ownerID,
		MediaID:     mediaID,
		Filename:    filename,
		ContentType: contentType,
		Caption:     in.Caption,
		BlobKey:     blobKey(ownerID, mediaID, filename),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	log := s.log.With().Str("op", "create").Str("owner_id", ownerID).Str("media_id", mediaID).Logger()

	err = s.run(ctx, protocol{
		op:         "create",
		divergence: DivergenceOrphanedBlob,
		steps: []step{
			{
				name:    "put-blob",
				commits: true,
				run: func(ctx context.Context) error {
					loc, err := s.blobs.Put(ctx, rec.BlobKey, in.Payload, rec.ContentType)
					if err != nil {
						return backendErr("put-blob", err)
					}
					rec.BlobLocation = loc
					return nil
				},
			},
			{
				name:    "upsert-record",
				commits: true,
				run: func(ctx context.Context) error {
					if err := s.index.Upsert(ctx, rec); err != nil {
						return backendErr("upsert-record", err)
					}
					return nil
				},
			},
		},
	}, log)
	if err != nil {
		return CreateResult{}, err
	}

	metrics.UploadBytesTotal.Add(float64(len(in.Payload)))
	log.Info().Str("blob_key", rec.BlobKey).Int("bytes", len(in.Payload)).Msg("media created")
	return CreateResult{MediaID: mediaID, OwnerID: ownerID, BlobLocation: rec.BlobLocation}, nil
}

func (s *Service) Get(ctx context.Context, ownerID, mediaID string) (rec store.Record, err error) {
	defer observe("get", &err)

	ownerID, mediaID, err = normalizeKey(ownerID, mediaID)
	if err != nil {
		return store.Record{}, err
	}
	err = s.run(ctx, protocol{
		op:    "get",
		steps: []step{s.getRecordStep(ownerID, mediaID, &rec)},
	}, s.log)
	return rec, err
}

// List returns the owner's records, or every record when ownerID is empty.
// The unscoped listing refuses to answer rather than truncate once more
// than the configured limit of records exist.
func (s *Service) List(ctx context.Context, ownerID string) (recs []store.Record, err error) {
	defer observe("list", &err)

	ownerID = strings.TrimSpace(ownerID)
	if ownerID != "" {
		if ownerID, err = normalizeOwner(ownerID); err != nil {
			return nil, err
		}
		recs, err = s.index.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, backendErr("list-by-owner", err)
		}
		return recs, nil
	}

	recs, err = s.index.ListAll(ctx, s.listAllLimit+1)
	if err != nil {
		return nil, backendErr("list-all", err)
	}
	if len(recs) > s.listAllLimit {
		return nil, ErrListTooLarge
	}
	return recs, nil
}

// Update merges the supplied fields into an existing record. Blob key and
// content type never change.
func (s *Service) Update(ctx context.Context, ownerID, mediaID string, in UpdateInput) (err error) {
	defer observe("update", &err)

	ownerID, mediaID, err = normalizeKey(ownerID, mediaID)
	if err != nil {
		return err
	}
	fields := store.Fields{Caption: in.Caption, Filename: in.Filename}
	if fields.Empty() {
		return fmt.Errorf("%w: provide at least one field to update: caption or filename", ErrInvalidInput)
	}
	if in.Filename != nil {
		name := strings.TrimSpace(*in.Filename)
		if name == "" {
			return fmt.Errorf("%w: filename cannot be empty", ErrInvalidInput)
		}
		fields.Filename = &name
	}

	var rec store.Record
	return s.run(ctx, protocol{
		op: "update",
		steps: []step{
			s.getRecordStep(ownerID, mediaID, &rec),
			{
				name:    "merge-fields",
				commits: true,
				run: func(ctx context.Context) error {
					err := s.index.Merge(ctx, ownerID, mediaID, fields, s.now().UTC())
					if store.IsNotFound(err) {
						return fmt.Errorf("%w: media %s/%s", ErrNotFound, ownerID, mediaID)
					}
					if err != nil {
						return backendErr("merge-fields", err)
					}
					return nil
				},
			},
		},
	}, s.log.With().Str("op", "update").Str("owner_id", ownerID).Str("media_id", mediaID).Logger())
}

// Delete removes the payload before the record. A failure between the two
// leaves a dangling record that a later delete cleans up.
func (s *Service) Delete(ctx context.Context, ownerID, mediaID string) (err error) {
	defer observe("delete", &err)

	ownerID, mediaID, err = normalizeKey(ownerID, mediaID)
	if err != nil {
		return err
	}
	log := s.log.With().Str("op", "delete").Str("owner_id", ownerID).Str("media_id", mediaID).Logger()

	var rec store.Record
	err = s.run(ctx, protocol{
		op:         "delete",
		divergence: DivergenceDanglingRecord,
		steps: []step{
			s.getRecordStep(ownerID, mediaID, &rec),
			{
				name:    "delete-blob",
				commits: true,
				run: func(ctx context.Context) error {
					if rec.BlobKey == "" {
						return nil
					}
					if err := s.blobs.Delete(ctx, rec.BlobKey); err != nil {
						if errors.Is(err, storage.ErrNotFound) {
							return err
						}
						return backendErr("delete-blob", err)
					}
					return nil
				},
				tolerate: func(err error) bool { return errors.Is(err, storage.ErrNotFound) },
			},
			{
				name:    "delete-record",
				commits: true,
				run: func(ctx context.Context) error {
					err := s.index.Delete(ctx, ownerID, mediaID)
					if store.IsNotFound(err) {
						return fmt.Errorf("%w: media %s/%s", ErrNotFound, ownerID, mediaID)
					}
					if err != nil {
						return backendErr("delete-record", err)
					}
					return nil
				},
			},
		},
	}, log)
	if err != nil {
		return err
	}
	log.Info().Str("blob_key", rec.BlobKey).Msg("media deleted")
	return nil
}

// IssueAccessURL mints a read-only URL for the record's payload. Validity
// is checked before any backend call.
func (s *Service) IssueAccessURL(ctx context.Context, req AccessRequest) (grant access.Grant, err error) {
	defer observe("issue-url", &err)

	validity := s.defaultValidity
	if req.ValidityMinutes != nil {
		minutes := *req.ValidityMinutes
		if minutes <= 0 {
			return access.Grant{}, fmt.Errorf("%w: validity must be a positive number of minutes", ErrInvalidInput)
		}
		if int64(minutes) > int64(s.maxValidity/time.Minute) {
			return access.Grant{}, fmt.Errorf("%w: validity cannot exceed %d minutes", ErrInvalidInput, int64(s.maxValidity/time.Minute))
		}
		validity = time.Duration(minutes) * time.Minute
	}
	ownerID, mediaID, err := normalizeKey(req.OwnerID, req.MediaID)
	if err != nil {
		return access.Grant{}, err
	}

	var rec store.Record
	err = s.run(ctx, protocol{
		op: "issue-url",
		steps: []step{
			s.getRecordStep(ownerID, mediaID, &rec),
			{
				name: "check-blob-key",
				run: func(context.Context) error {
					if strings.TrimSpace(rec.BlobKey) == "" {
						return fmt.Errorf("%w: no blob key stored for media %s/%s", ErrIntegrity, ownerID, mediaID)
					}
					return nil
				},
			},
			{
				name: "issue-url",
				run: func(ctx context.Context) error {
					g, err := s.issuer.IssueReadURL(ctx, rec.BlobKey, s.blobs.Container(), validity)
					if err != nil {
						return backendErr("issue-url", err)
					}
					grant = g
					return nil
				},
			},
		},
	}, s.log.With().Str("op", "issue-url").Str("owner_id", ownerID).Str("media_id", mediaID).Logger())
	if err != nil {
		return access.Grant{}, err
	}
	metrics.AccessURLsIssued.Inc()
	return grant, nil
}

// Fetch returns the stored payload of a record. A record whose payload is
// gone is an integrity error.
func (s *Service) Fetch(ctx context.Context, ownerID, mediaID string) (p Payload, err error) {
	defer observe("fetch", &err)

	ownerID, mediaID, err = normalizeKey(ownerID, mediaID)
	if err != nil {
		return Payload{}, err
	}
	var rec store.Record
	err = s.run(ctx, protocol{
		op: "fetch",
		steps: []step{
			s.getRecordStep(ownerID, mediaID, &rec),
			{
				name: "get-blob",
				run: func(ctx context.Context) error {
					if rec.BlobKey == "" {
						return fmt.Errorf("%w: no blob key stored for media %s/%s", ErrIntegrity, ownerID, mediaID)
					}
					obj, err := s.blobs.Get(ctx, rec.BlobKey)
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("%w: payload %q missing for media %s/%s", ErrIntegrity, rec.BlobKey, ownerID, mediaID)
					}
					if err != nil {
						return backendErr("get-blob", err)
					}
					p = Payload{Filename: rec.Filename, ContentType: rec.ContentType, Body: obj.Body}
					return nil
				},
			},
		},
	}, s.log.With().Str("op", "fetch").Str("owner_id", ownerID).Str("media_id", mediaID).Logger())
	if err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (s *Service) getRecordStep(ownerID, mediaID string, out *store.Record) step {
	return step{
		name: "get-record",
		run: func(ctx context.Context) error {
			rec, err := s.index.Get(ctx, ownerID, mediaID)
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: media %s/%s", ErrNotFound, ownerID, mediaID)
			}
			if err != nil {
				return backendErr("get-record", err)
			}
			*out = rec
			return nil
		},
	}
}

func observe(op string, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = Category(*errp)
	}
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
}

func normalizeOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if strings.ContainsAny(ownerID, "/\\") || ownerID == "." || ownerID == ".." || strings.ContainsFunc(ownerID, unicode.IsControl) {
		return "", fmt.Errorf("%w: invalid user_id %q", ErrInvalidInput, ownerID)
	}
	return ownerID, nil
}

func normalizeKey(ownerID, mediaID string) (string, string, error) {
	ownerID, err := normalizeOwner(ownerID)
	if err != nil {
		return "", "", err
	}
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return "", "", fmt.Errorf("%w: media id is required", ErrInvalidInput)
	}
	return ownerID, mediaID, nil
}

// blobKey names the payload "<owner>/<mediaId>-<filename>", with the
// filename reduced to a single safe path segment.
func blobKey(ownerID, mediaID, filename string) string {
	return ownerID + "/" + mediaID + "-" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return DefaultFilename
	}
	return name
}

func detectContentType(payload []byte) string {
	mt := mimetype.Detect(payload)
	if mt == nil || mt.String() == "" {
		return DefaultContentType
	}
	return mt.String()
}
