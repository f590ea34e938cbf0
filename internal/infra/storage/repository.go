package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// RecordRepository handles entity record storage.
// All writes are idempotent so they can be retried after a dropped connection.
type RecordRepository interface {
	// Save inserts or replaces a record. The version is bumped only when the payload changes.
	Save(ctx context.Context, rec *domain.Record) error

	// Get retrieves a record by entity and id
	Get(ctx context.Context, entity, id string) (*domain.Record, error)

	// List retrieves a page of records ordered by id
	List(ctx context.Context, entity string, limit, offset int) ([]*domain.Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, entity, id string) error

	// Count returns the number of records of an entity
	Count(ctx context.Context, entity string) (int, error)
}

// IndexQueueRepository handles the search index job queue
type IndexQueueRepository interface {
	// Enqueue adds a job, merging it into a pending job for the same record if one exists
	Enqueue(ctx context.Context, job *domain.IndexJob) error

	// Claim moves up to limit pending jobs to processing, oldest first
	Claim(ctx context.Context, limit int) ([]*domain.IndexJob, error)

	// Complete marks a job as done
	Complete(ctx context.Context, id int64) error

	// Fail records an error. The job goes back to pending until maxAttempts is reached.
	Fail(ctx context.Context, id int64, errorMsg string, maxAttempts int) error

	// RequeueStale returns jobs stuck in processing longer than olderThan to pending
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)

	// PruneFailed deletes failed jobs last updated before cutoff
	PruneFailed(ctx context.Context, cutoff time.Time) (int, error)

	// Counts returns the number of jobs per status
	Counts(ctx context.Context) (map[domain.IndexStatus]int, error)
}
