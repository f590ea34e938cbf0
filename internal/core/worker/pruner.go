package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/erpsync/internal/infra/storage"
)

// PrunerConfig controls how long dead index jobs are kept.
type PrunerConfig struct {
	FailedRetention time.Duration `yaml:"failed_retention"` // 0 = keep forever
}

// Pruner deletes failed index jobs once they are older than the retention period.
type Pruner struct {
	cfg   PrunerConfig
	queue storage.IndexQueueRepository
	log   *slog.Logger
}

// NewPruner creates a new Pruner worker. A nil logger means slog.Default().
func NewPruner(cfg PrunerConfig, queue storage.IndexQueueRepository, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		cfg:   cfg,
		queue: queue,
		log:   logger.With("component", "pruner"),
	}
}

// Interval returns how often the pruner runs: 10% of the retention period,
// clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.cfg.FailedRetention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.FailedRetention <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes failed jobs older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int {
	cutoff := time.Now().Add(-p.cfg.FailedRetention)
	n, err := p.queue.PruneFailed(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune index jobs", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned failed index jobs", "count", n, "cutoff", cutoff)
	}
	return n
}
