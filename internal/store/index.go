package store

import (
	"context"
	"errors"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

var ErrNotFound = errors.New("record not found")

// Record is the metadata entry for one uploaded payload. OwnerID is the
// partition key and MediaID the row key.
type Record struct {
	OwnerID      string
	MediaID      string
	Filename     string
	ContentType  string
	Caption      string
	BlobKey      string
	BlobLocation string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fields holds the mutable subset of a Record. Nil fields are left untouched
// by Merge.
type Fields struct {
	Caption  *string
	Filename *string
}

func (f Fields) Empty() bool {
	return f.Caption == nil && f.Filename == nil
}

// Index is the partitioned metadata table.
type Index interface {
	// Upsert inserts rec or fully replaces the row with the same key.
	Upsert(ctx context.Context, rec Record) error

	// Get returns the row for (ownerID, mediaID) or ErrNotFound.
	Get(ctx context.Context, ownerID, mediaID string) (Record, error)

	// ListByOwner returns every row in the owner partition ordered by MediaID.
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)

	// ListAll scans every partition. It has no cursor and is meant for small
	// tables; a positive limit stops the scan after that many rows.
	ListAll(ctx context.Context, limit int) ([]Record, error)

	// Merge updates only the non-nil fields and UpdatedAt. It never inserts
	// and returns ErrNotFound when the row is absent.
	Merge(ctx context.Context, ownerID, mediaID string, fields Fields, updatedAt time.Time) error

	// Delete removes the row or returns ErrNotFound.
	Delete(ctx context.Context, ownerID, mediaID string) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
