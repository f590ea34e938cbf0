package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

type MemoryStorage struct {
	records map[string]*domain.Record
	jobs    []*domain.IndexJob
	nextJob int64
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*domain.Record),
	}
}

func recordKey(entity, id string) string {
	return entity + "/" + id
}

// -----------------------------------------------------------------------------
// Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

func NewRecordRepo(store *MemoryStorage) *RecordRepo {
	return &RecordRepo{store: store}
}

func (r *RecordRepo) Save(ctx context.Context, rec *domain.Record) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	key := recordKey(rec.Entity, rec.ID)
	existing, ok := r.store.records[key]
	if !ok {
		saved := rec.Clone()
		saved.Version = 1
		saved.CreatedAt = now
		saved.UpdatedAt = now
		r.store.records[key] = saved
		rec.Version, rec.CreatedAt, rec.UpdatedAt = saved.Version, saved.CreatedAt, saved.UpdatedAt
		return nil
	}

	if !payloadEqual(existing.Payload, rec.Payload) {
		existing.Payload = rec.Clone().Payload
		existing.Version++
		existing.UpdatedAt = now
	}
	rec.Version, rec.CreatedAt, rec.UpdatedAt = existing.Version, existing.CreatedAt, existing.UpdatedAt
	return nil
}

func (r *RecordRepo) Get(ctx context.Context, entity, id string) (*domain.Record, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[recordKey(entity, id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *RecordRepo) List(ctx context.Context, entity string, limit, offset int) ([]*domain.Record, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var all []*domain.Record
	for _, rec := range r.store.records {
		if rec.Entity == entity {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	res := make([]*domain.Record, len(all))
	for i, rec := range all {
		res[i] = rec.Clone()
	}
	return res, nil
}

func (r *RecordRepo) Delete(ctx context.Context, entity, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.records, recordKey(entity, id))
	return nil
}

func (r *RecordRepo) Count(ctx context.Context, entity string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, rec := range r.store.records {
		if rec.Entity == entity {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Index Queue Repository
// -----------------------------------------------------------------------------

type QueueRepo struct {
	store *MemoryStorage
}

func NewQueueRepo(store *MemoryStorage) *QueueRepo {
	return &QueueRepo{store: store}
}

func (r *QueueRepo) Enqueue(ctx context.Context, job *domain.IndexJob) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	for _, j := range r.store.jobs {
		if j.Status == domain.IndexStatusPending && j.Entity == job.Entity && j.RecordID == job.RecordID {
			j.Op = job.Op
			j.UpdatedAt = now
			job.ID = j.ID
			return nil
		}
	}

	r.store.nextJob++
	saved := *job
	saved.ID = r.store.nextJob
	saved.Status = domain.IndexStatusPending
	saved.CreatedAt = now
	saved.UpdatedAt = now
	r.store.jobs = append(r.store.jobs, &saved)
	job.ID = saved.ID
	return nil
}

func (r *QueueRepo) Claim(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var res []*domain.IndexJob
	for _, j := range r.store.jobs {
		if len(res) >= limit {
			break
		}
		if j.Status != domain.IndexStatusPending {
			continue
		}
		j.Status = domain.IndexStatusProcessing
		j.UpdatedAt = time.Now().UTC()
		c := *j
		res = append(res, &c)
	}
	return res, nil
}

func (r *QueueRepo) Complete(ctx context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i, j := range r.store.jobs {
		if j.ID == id {
			r.store.jobs = append(r.store.jobs[:i], r.store.jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *QueueRepo) Fail(ctx context.Context, id int64, msg string, maxAttempts int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i, j := range r.store.jobs {
		if j.ID != id {
			continue
		}
		if r.hasPending(j) {
			r.store.jobs = append(r.store.jobs[:i], r.store.jobs[i+1:]...)
			return nil
		}
		j.Attempts++
		j.LastError = msg
		j.UpdatedAt = time.Now().UTC()
		if maxAttempts > 0 && j.Attempts >= maxAttempts {
			j.Status = domain.IndexStatusFailed
		} else {
			j.Status = domain.IndexStatusPending
		}
		return nil
	}
	return nil
}

func (r *QueueRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	isStale := func(j *domain.IndexJob) bool {
		return j.Status == domain.IndexStatusProcessing && j.UpdatedAt.Before(cutoff)
	}

	// Only the newest stale job per record is kept
	newest := make(map[string]int64)
	for _, j := range r.store.jobs {
		if !isStale(j) {
			continue
		}
		key := recordKey(j.Entity, j.RecordID)
		if j.ID > newest[key] {
			newest[key] = j.ID
		}
	}

	kept := make([]*domain.IndexJob, 0, len(r.store.jobs))
	n := 0
	for _, j := range r.store.jobs {
		if isStale(j) {
			if r.hasPending(j) || j.ID != newest[recordKey(j.Entity, j.RecordID)] {
				continue
			}
			j.Status = domain.IndexStatusPending
			j.UpdatedAt = time.Now().UTC()
			n++
		}
		kept = append(kept, j)
	}
	r.store.jobs = kept
	return n, nil
}

// PruneFailed deletes failed jobs last updated before cutoff.
func (r *QueueRepo) PruneFailed(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := make([]*domain.IndexJob, 0, len(r.store.jobs))
	n := 0
	for _, j := range r.store.jobs {
		if j.Status == domain.IndexStatusFailed && j.UpdatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, j)
	}
	r.store.jobs = kept
	return n, nil
}

// hasPending reports whether another pending job exists for job's record.
// Caller must hold the lock.
func (r *QueueRepo) hasPending(job *domain.IndexJob) bool {
	for _, p := range r.store.jobs {
		if p.ID != job.ID && p.Status == domain.IndexStatusPending &&
			p.Entity == job.Entity && p.RecordID == job.RecordID {
			return true
		}
	}
	return false
}

func (r *QueueRepo) Counts(ctx context.Context) (map[domain.IndexStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.IndexStatus]int)
	for _, j := range r.store.jobs {
		counts[j.Status]++
	}
	return counts, nil
}
