package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
)

// IndexQueueRepo implements storage.IndexQueueRepository using PostgreSQL.
type IndexQueueRepo struct {
	db *DB
}

// NewIndexQueueRepo creates a new PostgreSQL index queue repository.
func NewIndexQueueRepo(db *DB) *IndexQueueRepo {
	return &IndexQueueRepo{db: db}
}

const jobColumns = `id, entity, record_id, op, status, attempts, last_error, created_at, updated_at`

// Enqueue adds a job or overwrites the op of the record's pending job.
func (r *IndexQueueRepo) Enqueue(ctx context.Context, job *domain.IndexJob) error {
	query := `
		INSERT INTO index_jobs (entity, record_id, op, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, '', NOW(), NOW())
		ON CONFLICT (entity, record_id) WHERE status = 'pending'
		DO UPDATE SET op = EXCLUDED.op, updated_at = NOW()
		RETURNING id
	`
	var id int64
	if err := r.db.GetContext(ctx, &id, query, job.Entity, job.RecordID, string(job.Op)); err != nil {
		return fmt.Errorf("failed to enqueue index job: %w", err)
	}
	job.ID = id
	job.Status = domain.IndexStatusPending
	return nil
}

// Claim moves up to limit pending jobs to processing. Concurrent drains skip
// each other's rows.
func (r *IndexQueueRepo) Claim(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	query := `
		UPDATE index_jobs
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM index_jobs
			WHERE status = 'pending'
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var jobs []*domain.IndexJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to claim index jobs: %w", err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// Complete removes a finished job.
func (r *IndexQueueRepo) Complete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM index_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to complete index job: %w", err)
	}
	return nil
}

// Fail records the error and returns the job to pending, or marks it failed
// once maxAttempts is reached. A job superseded by a newer pending job for the
// same record is dropped.
func (r *IndexQueueRepo) Fail(ctx context.Context, id int64, msg string, maxAttempts int) error {
	query := `
		WITH superseded AS (
			DELETE FROM index_jobs j
			WHERE j.id = $1 AND EXISTS (
				SELECT 1 FROM index_jobs p
				WHERE p.entity = j.entity AND p.record_id = j.record_id AND p.status = 'pending'
			)
			RETURNING j.id
		)
		UPDATE index_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN $3::int > 0 AND attempts + 1 >= $3::int THEN 'failed' ELSE 'pending' END,
		    updated_at = NOW()
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM superseded)
	`
	if _, err := r.db.ExecContext(ctx, query, id, msg, maxAttempts); err != nil {
		return fmt.Errorf("failed to record index job failure: %w", err)
	}
	return nil
}

// RequeueStale returns jobs stuck in processing for longer than olderThan to
// pending, e.g. after a drain crashed mid-batch.
func (r *IndexQueueRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Stale jobs that already have a pending successor are redundant
	_, err = tx.ExecContext(ctx, `
		DELETE FROM index_jobs j
		WHERE j.status = 'processing' AND j.updated_at < $1 AND EXISTS (
			SELECT 1 FROM index_jobs p
			WHERE p.entity = j.entity AND p.record_id = j.record_id AND p.status = 'pending'
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to drop superseded jobs: %w", err)
	}

	// Keep only the newest stale job per record
	_, err = tx.ExecContext(ctx, `
		DELETE FROM index_jobs j
		WHERE j.status = 'processing' AND j.updated_at < $1 AND EXISTS (
			SELECT 1 FROM index_jobs n
			WHERE n.entity = j.entity AND n.record_id = j.record_id
				AND n.status = 'processing' AND n.updated_at < $1 AND n.id > j.id
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to drop duplicate stale jobs: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE index_jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit requeue: %w", err)
	}
	return int(n), nil
}

// PruneFailed deletes failed jobs last updated before cutoff.
func (r *IndexQueueRepo) PruneFailed(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM index_jobs WHERE status = 'failed' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune failed jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Counts returns the number of jobs per status.
func (r *IndexQueueRepo) Counts(ctx context.Context) (map[domain.IndexStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM index_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count index jobs: %w", err)
	}

	counts := make(map[domain.IndexStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.IndexStatus(row.Status)] = row.Count
	}
	return counts, nil
}
