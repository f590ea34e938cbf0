package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

// RecordRepo implements storage.RecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

type recordRow struct {
	Entity    string    `db:"entity"`
	ID        string    `db:"id"`
	Payload   []byte    `db:"payload"`
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row recordRow) toDomain() (*domain.Record, error) {
	rec := &domain.Record{
		ID:        row.ID,
		Entity:    row.Entity,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s/%s: %w", row.Entity, row.ID, err)
	}
	return rec, nil
}

// Save upserts a record. Replaying the same payload leaves the version alone,
// which keeps the write safe to retry.
func (r *RecordRepo) Save(ctx context.Context, rec *domain.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `
		INSERT INTO records (entity, id, payload, version, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, NOW(), NOW())
		ON CONFLICT (entity, id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    version = records.version + 1,
		    updated_at = NOW()
		WHERE records.payload IS DISTINCT FROM EXCLUDED.payload
		RETURNING version, created_at, updated_at
	`
	var dest struct {
		Version   int64     `db:"version"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err = r.db.GetContext(ctx, &dest, query, rec.Entity, rec.ID, string(payload))
	if errors.Is(err, sql.ErrNoRows) {
		// Payload unchanged, nothing was written
		err = r.db.GetContext(ctx, &dest,
			`SELECT version, created_at, updated_at FROM records WHERE entity = $1 AND id = $2`,
			rec.Entity, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	rec.Version = dest.Version
	rec.CreatedAt = dest.CreatedAt
	rec.UpdatedAt = dest.UpdatedAt
	return nil
}

// Get retrieves a record by entity and id.
func (r *RecordRepo) Get(ctx context.Context, entity, id string) (*domain.Record, error) {
	query := `
		SELECT entity, id, payload, version, created_at, updated_at
		FROM records
		WHERE entity = $1 AND id = $2
	`
	var row recordRow
	err := r.db.GetContext(ctx, &row, query, entity, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return row.toDomain()
}

// List returns records ordered by id. A limit <= 0 means no limit.
func (r *RecordRepo) List(ctx context.Context, entity string, limit, offset int) ([]*domain.Record, error) {
	query := `
		SELECT entity, id, payload, version, created_at, updated_at
		FROM records
		WHERE entity = $1
		ORDER BY id
		LIMIT NULLIF($2::int, 0) OFFSET $3
	`
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, entity, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	recs := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Delete removes a record.
func (r *RecordRepo) Delete(ctx context.Context, entity, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE entity = $1 AND id = $2`, entity, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Count returns the number of records of an entity.
func (r *RecordRepo) Count(ctx context.Context, entity string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM records WHERE entity = $1`, entity)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
