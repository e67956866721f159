package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed Index. The media_metadata table is created by
// the embedded migrations in internal/db.
type Store struct {
	db *pgxpool.Pool
}

var _ Index = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const recordColumns = `partition_key, row_key, filename, content_type, caption, blob_key, blob_location, created_at, updated_at`

func (s *Store) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO media_metadata (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (partition_key, row_key)
		DO UPDATE SET
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			caption = EXCLUDED.caption,
			blob_key = EXCLUDED.blob_key,
			blob_location = EXCLUDED.blob_location,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, rec.OwnerID, rec.MediaID, rec.Filename, rec.ContentType, rec.Caption,
		rec.BlobKey, rec.BlobLocation, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert media_metadata: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ownerID, mediaID string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM media_metadata
		WHERE partition_key = $1 AND row_key = $2
	`, ownerID, mediaID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get media_metadata: %w", err)
	}
	return rec, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM media_metadata
		WHERE partition_key = $1
		ORDER BY row_key
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list media_metadata: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) ListAll(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM media_metadata
		ORDER BY partition_key, row_key`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan media_metadata: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) Merge(ctx context.Context, ownerID, mediaID string, fields Fields, updatedAt time.Time) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE media_metadata
		SET caption = COALESCE($3::text, caption),
			filename = COALESCE($4::text, filename),
			updated_at = $5
		WHERE partition_key = $1 AND row_key = $2
	`, ownerID, mediaID, fields.Caption, fields.Filename, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("merge media_metadata: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ownerID, mediaID string) error {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM media_metadata
		WHERE partition_key = $1 AND row_key = $2
	`, ownerID, mediaID)
	if err != nil {
		return fmt.Errorf("delete media_metadata: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.OwnerID,
		&rec.MediaID,
		&rec.Filename,
		&rec.ContentType,
		&rec.Caption,
		&rec.BlobKey,
		&rec.BlobLocation,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
