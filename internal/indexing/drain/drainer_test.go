package drain

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/indexing/search"
	"github.com/vietddude/erpsync/internal/infra/storage/memory"
)

// =============================================================================
// Mock Index
// =============================================================================

// flakyIndex fails the first failures calls with err, then delegates.
type flakyIndex struct {
	search.Index
	failures int
	err      error
	calls    int
}

func (f *flakyIndex) Put(ctx context.Context, rec *domain.Record) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.Index.Put(ctx, rec)
}

type fixture struct {
	records *memory.RecordRepo
	queue   *memory.QueueRepo
	index   *search.MemoryIndex
}

func newFixture() fixture {
	store := memory.NewMemoryStorage()
	return fixture{
		records: memory.NewRecordRepo(store),
		queue:   memory.NewQueueRepo(store),
		index:   search.NewMemoryIndex(),
	}
}

func (f fixture) put(t *testing.T, rec *domain.Record) {
	t.Helper()
	ctx := context.Background()
	if err := f.records.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := f.queue.Enqueue(ctx, &domain.IndexJob{Entity: rec.Entity, RecordID: rec.ID, Op: domain.IndexOpUpsert}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
}

var testPolicy = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

// =============================================================================
// Tests
// =============================================================================

func TestDrainOnce_IndexesAndRemoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := NewDrainer(Config{BatchSize: 10}, f.queue, f.records, f.index, testPolicy, nil, nil)

	f.put(t, &domain.Record{ID: "c1", Entity: "customer", Payload: map[string]any{"name": "Acme"}})
	f.put(t, &domain.Record{ID: "c2", Entity: "customer", Payload: map[string]any{"name": "Acme East"}})

	res, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if res.Claimed != 2 || res.Indexed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	hits, _ := f.index.Search(ctx, "customer", "acme")
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	_ = f.records.Delete(ctx, "customer", "c2")
	_ = f.queue.Enqueue(ctx, &domain.IndexJob{Entity: "customer", RecordID: "c2", Op: domain.IndexOpDelete})

	res, err = d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if res.Removed != 1 {
		t.Errorf("expected 1 removal, got %+v", res)
	}
	if hits, _ = f.index.Search(ctx, "customer", "acme"); len(hits) != 1 {
		t.Errorf("expected 1 hit after delete, got %d", len(hits))
	}

	counts, _ := f.queue.Counts(ctx)
	if len(counts) != 0 {
		t.Errorf("queue should be empty, got %v", counts)
	}
}

func TestDrainOnce_UpsertOfMissingRecordRemoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := NewDrainer(Config{}, f.queue, f.records, f.index, testPolicy, nil, nil)

	_ = f.index.Put(ctx, &domain.Record{ID: "gone", Entity: "asset", Payload: map[string]any{"name": "Lathe"}})
	_ = f.queue.Enqueue(ctx, &domain.IndexJob{Entity: "asset", RecordID: "gone", Op: domain.IndexOpUpsert})

	res, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if res.Removed != 1 || res.Indexed != 0 {
		t.Errorf("expected removal, got %+v", res)
	}
	if hits, _ := f.index.Search(ctx, "asset", "lathe"); len(hits) != 0 {
		t.Errorf("expected stale document to be removed")
	}
}

func TestDrainOnce_RetriesTransientIndexErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := &flakyIndex{Index: f.index, failures: 2, err: errors.New("dial tcp: i/o timeout")}
	d := NewDrainer(Config{}, f.queue, f.records, idx, testPolicy, nil, nil)

	f.put(t, &domain.Record{ID: "a1", Entity: "asset", Payload: map[string]any{"name": "Press"}})

	res, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if res.Indexed != 1 || res.Failed != 0 {
		t.Errorf("expected success after retries, got %+v", res)
	}
	if idx.calls != 3 {
		t.Errorf("expected 3 index calls, got %d", idx.calls)
	}
}

func TestDrainOnce_FailedJobsEventuallyMarkedFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := &flakyIndex{Index: f.index, failures: 1000, err: errors.New("WRONGTYPE Operation against a key")}
	d := NewDrainer(Config{MaxAttempts: 2}, f.queue, f.records, idx, testPolicy, nil, nil)

	f.put(t, &domain.Record{ID: "a1", Entity: "asset", Payload: map[string]any{"name": "Press"}})

	for pass := 0; pass < 2; pass++ {
		res, err := d.DrainOnce(ctx)
		if err != nil {
			t.Fatalf("DrainOnce failed: %v", err)
		}
		if res.Failed != 1 {
			t.Fatalf("pass %d: expected 1 failure, got %+v", pass, res)
		}
	}

	// Non-transient error: one index call per pass
	if idx.calls != 2 {
		t.Errorf("expected 2 index calls, got %d", idx.calls)
	}

	counts, _ := f.queue.Counts(ctx)
	if counts[domain.IndexStatusFailed] != 1 {
		t.Errorf("expected job to be failed, got %v", counts)
	}

	res, _ := d.DrainOnce(ctx)
	if res.Claimed != 0 {
		t.Errorf("failed job must not be claimed, got %+v", res)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture()
	d := NewDrainer(Config{Interval: time.Millisecond}, f.queue, f.records, f.index, testPolicy, nil, nil)
	f.put(t, &domain.Record{ID: "a1", Entity: "asset", Payload: map[string]any{"name": "Saw"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		hits, _ := f.index.Search(context.Background(), "asset", "saw")
		if len(hits) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("record was never indexed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestDrainOnce_LogsToInjectedLogger(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := &flakyIndex{Index: f.index, failures: 1000, err: errors.New("WRONGTYPE Operation against a key")}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDrainer(Config{}, f.queue, f.records, idx, testPolicy, nil, logger)

	f.put(t, &domain.Record{ID: "a1", Entity: "asset", Payload: map[string]any{"name": "Press"}})
	if _, err := d.DrainOnce(ctx); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Index job failed") || !strings.Contains(out, "component=drain") {
		t.Errorf("expected failure logged by the injected logger, got %q", out)
	}
}
