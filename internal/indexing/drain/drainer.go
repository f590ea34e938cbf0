package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/indexing/metrics"
	"github.com/vietddude/erpsync/internal/indexing/search"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

// Config holds configuration for the drainer.
type Config struct {
	Interval    time.Duration `yaml:"interval"`     // Pause between passes when idle (default: 5s)
	BatchSize   int           `yaml:"batch_size"`   // Jobs claimed per pass (default: 100)
	MaxAttempts int           `yaml:"max_attempts"` // Passes before a job is marked failed (default: 5)
	StaleAfter  time.Duration `yaml:"stale_after"`  // Processing jobs older than this are requeued (default: 5m)
}

// DefaultConfig returns default drain configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		BatchSize:   100,
		MaxAttempts: 5,
		StaleAfter:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	return c
}

// Result summarizes one drain pass.
type Result struct {
	Claimed  int
	Indexed  int
	Removed  int
	Failed   int
	Requeued int
	Duration time.Duration
}

// Drainer moves queued index jobs into the search index.
type Drainer struct {
	cfg       Config
	queue     storage.IndexQueueRepository
	records   storage.RecordRepository
	index     search.Index
	policy    retry.Policy
	retryable func(error) bool
	log       *slog.Logger
}

// NewDrainer creates a new drainer. storeRetryable classifies errors of the
// queue and record repositories, the index uses policy.Retryable. A nil
// logger means slog.Default().
func NewDrainer(
	cfg Config,
	queue storage.IndexQueueRepository,
	records storage.RecordRepository,
	index search.Index,
	policy retry.Policy,
	storeRetryable func(error) bool,
	logger *slog.Logger,
) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{
		cfg:       cfg.withDefaults(),
		queue:     queue,
		records:   records,
		index:     index,
		policy:    policy,
		retryable: storeRetryable,
		log:       logger.With("component", "drain"),
	}
}

func (d *Drainer) options(op string, classifier func(error) bool) []retry.Option {
	return []retry.Option{
		retry.WithPolicy(d.policy),
		retry.Classifier(classifier),
		retry.OnRetry(func(a retry.Attempt) {
			metrics.RetriesTotal.WithLabelValues(op).Inc()
			d.log.Warn("Retrying", "operation", op, "retry", a.Index+1, "delay", a.Delay, "error", a.Err)
		}),
	}
}

func (d *Drainer) storeOptions(op string) []retry.Option {
	classifier := d.retryable
	if classifier == nil {
		classifier = d.policy.Retryable
	}
	return d.options(op, classifier)
}

// Run drains until ctx is done. Full batches are followed by another pass
// right away, otherwise the drainer waits for the configured interval.
func (d *Drainer) Run(ctx context.Context) error {
	d.log.Info("Starting index drain", "interval", d.cfg.Interval, "batch", d.cfg.BatchSize)

	for {
		res, err := d.DrainOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.log.Error("Drain pass failed", "error", err)
		}

		wait := d.cfg.Interval
		if err == nil && res.Claimed >= d.cfg.BatchSize {
			wait = 0
		}

		select {
		case <-ctx.Done():
			d.log.Info("Index drain stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// DrainOnce claims one batch of jobs and applies them to the search index.
// Per-job failures are recorded on the job; the returned error is reserved
// for queue failures.
func (d *Drainer) DrainOnce(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.DrainLatency.Observe(res.Duration.Seconds())
	}()

	requeued, err := retry.Execute(ctx, func(ctx context.Context) (int, error) {
		return d.queue.RequeueStale(ctx, d.cfg.StaleAfter)
	}, d.storeOptions("requeue_stale")...)
	if err != nil {
		return res, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	res.Requeued = requeued
	if requeued > 0 {
		d.log.Warn("Requeued stale index jobs", "count", requeued)
	}

	// Claiming is not idempotent: a claim lost to a dropped connection leaves
	// jobs in processing until RequeueStale picks them up again.
	jobs, err := retry.Execute(ctx, func(ctx context.Context) ([]*domain.IndexJob, error) {
		return d.queue.Claim(ctx, d.cfg.BatchSize)
	}, d.storeOptions("claim_index_jobs")...)
	if err != nil {
		return res, fmt.Errorf("failed to claim index jobs: %w", err)
	}
	res.Claimed = len(jobs)

	for _, job := range jobs {
		op, err := d.apply(ctx, job)
		if err != nil {
			res.Failed++
			metrics.IndexJobsTotal.WithLabelValues(string(job.Op), "error").Inc()
			d.log.Error("Index job failed",
				"job", job.ID, "entity", job.Entity, "record", job.RecordID,
				"attempt", job.Attempts+1, "error", err)

			failErr := retry.Do(ctx, func(ctx context.Context) error {
				return d.queue.Fail(ctx, job.ID, err.Error(), d.cfg.MaxAttempts)
			}, d.storeOptions("fail_index_job")...)
			if failErr != nil {
				return res, fmt.Errorf("failed to record job failure: %w", failErr)
			}
			continue
		}

		switch op {
		case domain.IndexOpUpsert:
			res.Indexed++
		case domain.IndexOpDelete:
			res.Removed++
		}
		metrics.IndexJobsTotal.WithLabelValues(string(op), "ok").Inc()

		err = retry.Do(ctx, func(ctx context.Context) error {
			return d.queue.Complete(ctx, job.ID)
		}, d.storeOptions("complete_index_job")...)
		if err != nil {
			return res, fmt.Errorf("failed to complete job: %w", err)
		}
	}

	d.updateDepth(ctx)

	if res.Claimed > 0 {
		d.log.Debug("Drain pass done",
			"claimed", res.Claimed, "indexed", res.Indexed, "removed", res.Removed, "failed", res.Failed)
	}
	return res, nil
}

// apply brings the index in line with the job and returns the op actually
// performed. An upsert of a record that no longer exists becomes a delete.
func (d *Drainer) apply(ctx context.Context, job *domain.IndexJob) (domain.IndexOp, error) {
	switch job.Op {
	case domain.IndexOpUpsert:
		rec, err := retry.Execute(ctx, func(ctx context.Context) (*domain.Record, error) {
			return d.records.Get(ctx, job.Entity, job.RecordID)
		}, d.storeOptions("get_record")...)
		if errors.Is(err, storage.ErrNotFound) {
			return domain.IndexOpDelete, d.remove(ctx, job)
		}
		if err != nil {
			return job.Op, fmt.Errorf("failed to load record: %w", err)
		}
		return job.Op, retry.Do(ctx, func(ctx context.Context) error {
			return d.index.Put(ctx, rec)
		}, d.options("index_put", d.policy.Retryable)...)

	case domain.IndexOpDelete:
		return job.Op, d.remove(ctx, job)

	default:
		return job.Op, fmt.Errorf("unknown index op %q", job.Op)
	}
}

func (d *Drainer) remove(ctx context.Context, job *domain.IndexJob) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return d.index.Delete(ctx, job.Entity, job.RecordID)
	}, d.options("index_delete", d.policy.Retryable)...)
}

func (d *Drainer) updateDepth(ctx context.Context) {
	counts, err := d.queue.Counts(ctx)
	if err != nil {
		d.log.Warn("Failed to read queue depth", "error", err)
		return
	}
	for _, status := range []domain.IndexStatus{
		domain.IndexStatusPending,
		domain.IndexStatusProcessing,
		domain.IndexStatusFailed,
	} {
		metrics.IndexQueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
