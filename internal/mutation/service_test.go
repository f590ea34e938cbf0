package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/infra/storage"
	"github.com/vietddude/erpsync/internal/infra/storage/memory"
)

// =============================================================================
// Flaky Repository
// =============================================================================

// flakyRecords fails the first n calls of each method with err.
type flakyRecords struct {
	storage.RecordRepository
	failures int
	err      error
	calls    int
}

func (f *flakyRecords) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyRecords) Save(ctx context.Context, rec *domain.Record) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.RecordRepository.Save(ctx, rec)
}

func (f *flakyRecords) Delete(ctx context.Context, entity, id string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.RecordRepository.Delete(ctx, entity, id)
}

func (f *flakyRecords) Get(ctx context.Context, entity, id string) (*domain.Record, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.RecordRepository.Get(ctx, entity, id)
}

func newTestService(records storage.RecordRepository, queue storage.IndexQueueRepository) *Service {
	return NewService(Config{
		Records: records,
		Queue:   queue,
		Policy:  retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
	})
}

// =============================================================================
// Tests
// =============================================================================

func TestPut_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	records := &flakyRecords{
		RecordRepository: memory.NewRecordRepo(store),
		failures:         2,
		err:              errors.New("read tcp: connection reset by peer"),
	}
	queue := memory.NewQueueRepo(store)
	svc := newTestService(records, queue)

	rec := &domain.Record{Entity: "invoice", Payload: map[string]any{"no": "INV-7"}}
	if err := svc.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if records.calls != 3 {
		t.Errorf("expected 3 save calls, got %d", records.calls)
	}
	if rec.ID == "" {
		t.Error("expected generated id")
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1, got %d", rec.Version)
	}

	counts, _ := queue.Counts(ctx)
	if counts[domain.IndexStatusPending] != 1 {
		t.Errorf("expected 1 pending index job, got %v", counts)
	}
}

func TestPut_NonTransientFailsFast(t *testing.T) {
	store := memory.NewMemoryStorage()
	errConstraint := errors.New("violates check constraint")
	records := &flakyRecords{
		RecordRepository: memory.NewRecordRepo(store),
		failures:         10,
		err:              errConstraint,
	}
	queue := memory.NewQueueRepo(store)
	svc := newTestService(records, queue)

	err := svc.Put(context.Background(), &domain.Record{ID: "x", Entity: "invoice", Payload: map[string]any{}})
	if err != errConstraint {
		t.Fatalf("expected constraint error unchanged, got %v", err)
	}
	if records.calls != 1 {
		t.Errorf("expected 1 call, got %d", records.calls)
	}
	counts, _ := queue.Counts(context.Background())
	if len(counts) != 0 {
		t.Errorf("nothing should be queued after a failed save, got %v", counts)
	}
}

func TestPut_InvalidRecord(t *testing.T) {
	store := memory.NewMemoryStorage()
	svc := newTestService(memory.NewRecordRepo(store), memory.NewQueueRepo(store))

	err := svc.Put(context.Background(), &domain.Record{Entity: "Bad Name", Payload: map[string]any{}})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestPut_ExhaustedReturnsLastError(t *testing.T) {
	store := memory.NewMemoryStorage()
	errTimeout := errors.New("i/o timeout")
	records := &flakyRecords{
		RecordRepository: memory.NewRecordRepo(store),
		failures:         100,
		err:              errTimeout,
	}
	svc := newTestService(records, memory.NewQueueRepo(store))

	err := svc.Put(context.Background(), &domain.Record{Entity: "asset", Payload: map[string]any{}})
	if err != errTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if records.calls != 4 {
		t.Errorf("expected 4 calls, got %d", records.calls)
	}
}

func TestDelete_QueuesIndexRemoval(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	queue := memory.NewQueueRepo(store)
	svc := newTestService(memory.NewRecordRepo(store), queue)

	rec := &domain.Record{ID: "a1", Entity: "asset", Payload: map[string]any{"name": "Drill"}}
	if err := svc.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := svc.Delete(ctx, "asset", "a1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := svc.Get(ctx, "asset", "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	jobs, _ := queue.Claim(ctx, 10)
	if len(jobs) != 1 || jobs[0].Op != domain.IndexOpDelete {
		t.Errorf("expected a single delete job, got %+v", jobs)
	}
}

func TestGet_RetriesThenReads(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	base := memory.NewRecordRepo(store)
	_ = base.Save(ctx, &domain.Record{ID: "v1", Entity: "vendor", Payload: map[string]any{"name": "Bolt"}})

	records := &flakyRecords{RecordRepository: base, failures: 1, err: errors.New("ECONNREFUSED")}
	svc := newTestService(records, memory.NewQueueRepo(store))

	rec, err := svc.Get(ctx, "vendor", "v1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Payload["name"] != "Bolt" {
		t.Errorf("unexpected payload %v", rec.Payload)
	}
}
