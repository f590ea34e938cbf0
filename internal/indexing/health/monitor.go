package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

// Checker is a dependency that can report its own health.
type Checker interface {
	Health(ctx context.Context) error
}

// Thresholds decide when the queue degrades the system status.
type Thresholds struct {
	PendingDegraded int
	PendingCritical int
	FailedDegraded  int
}

// DefaultThresholds returns default queue thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PendingDegraded: 1000,
		PendingCritical: 10000,
		FailedDegraded:  1,
	}
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	checkers   map[string]Checker
	queue      storage.IndexQueueRepository
	thresholds Thresholds
	cacheFor   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Checkers are keyed by component name.
func NewMonitor(
	checkers map[string]Checker,
	queue storage.IndexQueueRepository,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		checkers:   checkers,
		queue:      queue,
		thresholds: thresholds,
		cacheFor:   5 * time.Second,
	}
}

// CheckHealth performs a health check of all components and the queue.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering dependencies
	if time.Since(m.lastCheck) < m.cacheFor && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checkers)),
	}

	for name, c := range m.checkers {
		ch := ComponentHealth{Name: name, Status: StatusHealthy}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.Health(checkCtx); err != nil {
			ch.Status = StatusCritical
			ch.Error = err.Error()
		}
		cancel()
		report.Components[name] = ch
		report.SystemStatus = worst(report.SystemStatus, ch.Status)
	}

	report.Queue = m.checkQueue(ctx)
	report.SystemStatus = worst(report.SystemStatus, report.Queue.Status)

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkQueue(ctx context.Context) QueueHealth {
	q := QueueHealth{Status: StatusHealthy}
	if m.queue == nil {
		return q
	}

	counts, err := m.queue.Counts(ctx)
	if err != nil {
		q.Status = StatusDegraded
		return q
	}
	q.Pending = counts[domain.IndexStatusPending]
	q.Processing = counts[domain.IndexStatusProcessing]
	q.Failed = counts[domain.IndexStatusFailed]

	if q.Pending >= m.thresholds.PendingCritical {
		q.Status = StatusCritical
	} else if q.Pending >= m.thresholds.PendingDegraded || q.Failed >= m.thresholds.FailedDegraded {
		q.Status = StatusDegraded
	}
	return q
}

var statusRank = map[SystemStatus]int{
	StatusHealthy:  0,
	StatusDegraded: 1,
	StatusCritical: 2,
}

func worst(a, b SystemStatus) SystemStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}
