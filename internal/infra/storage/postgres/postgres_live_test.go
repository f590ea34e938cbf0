package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

// Set ERPSYNC_TEST_DATABASE_URL to a disposable database to run these tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("ERPSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ERPSYNC_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url}, retry.Policy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE records, index_jobs"); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	return db
}

func TestRecordRepo_Live(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepo(db)

	rec := &domain.Record{ID: "inv-1", Entity: "invoice", Payload: map[string]any{"total": 120.5, "customer": "ACME"}}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1, got %d", rec.Version)
	}

	// Same payload again: no new version
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save replay failed: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1 after replay, got %d", rec.Version)
	}

	rec.Payload["total"] = 99.0
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("expected version 2, got %d", rec.Version)
	}

	got, err := repo.Get(ctx, "invoice", "inv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Payload["customer"] != "ACME" {
		t.Errorf("unexpected payload: %v", got.Payload)
	}

	if err := repo.Delete(ctx, "invoice", "inv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "invoice", "inv-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexQueueRepo_Live(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	q := NewIndexQueueRepo(db)

	a := &domain.IndexJob{Entity: "invoice", RecordID: "inv-1", Op: domain.IndexOpUpsert}
	b := &domain.IndexJob{Entity: "invoice", RecordID: "inv-1", Op: domain.IndexOpDelete}
	if err := q.Enqueue(ctx, a); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, b); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("expected pending jobs to merge")
	}

	jobs, err := q.Claim(ctx, 10)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Op != domain.IndexOpDelete {
		t.Fatalf("unexpected claim result: %+v", jobs)
	}

	if err := q.Fail(ctx, jobs[0].ID, "boom", 1); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[domain.IndexStatusFailed] != 1 {
		t.Errorf("expected 1 failed job, got %v", counts)
	}

	n, err := q.PruneFailed(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned job, got %d", n)
	}
}
