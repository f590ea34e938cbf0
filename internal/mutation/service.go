// Package mutation is the write path for entity records. Every storage call
// goes through the retry executor; only idempotent writes are issued so a
// retry after a dropped connection cannot apply a change twice.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/indexing/metrics"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

// Service writes records and queues their search index updates.
type Service struct {
	records   storage.RecordRepository
	queue     storage.IndexQueueRepository
	policy    retry.Policy
	retryable func(error) bool
	log       *slog.Logger
}

// Config holds the service dependencies.
type Config struct {
	Records storage.RecordRepository
	Queue   storage.IndexQueueRepository
	Policy  retry.Policy
	// Retryable overrides Policy.Retryable, e.g. with postgres.IsRetryable.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// NewService creates a new mutation service.
func NewService(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = cfg.Policy.Retryable
	}
	return &Service{
		records:   cfg.Records,
		queue:     cfg.Queue,
		policy:    cfg.Policy,
		retryable: retryable,
		log:       log.With("component", "mutation"),
	}
}

// options builds the retry options for one storage call.
func (s *Service) options(op string) []retry.Option {
	return []retry.Option{
		retry.WithPolicy(s.policy),
		retry.Classifier(s.retryable),
		retry.OnRetry(func(a retry.Attempt) {
			metrics.RetriesTotal.WithLabelValues(op).Inc()
			s.log.Warn("Retrying storage call",
				"operation", op,
				"retry", a.Index+1,
				"delay", a.Delay,
				"error", a.Err,
			)
		}),
	}
}

func (s *Service) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := retry.Do(ctx, fn, s.options(op)...)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues(op).Inc()
	}
	return err
}

// Put validates and stores rec, assigning an ID when it has none, then queues
// a search index update. rec is updated with the stored version and timestamps.
func (s *Service) Put(ctx context.Context, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	err := s.do(ctx, "save_record", func(ctx context.Context) error {
		return s.records.Save(ctx, rec)
	})
	if err != nil {
		return err
	}
	metrics.MutationsTotal.WithLabelValues(rec.Entity, "put").Inc()

	if err := s.enqueue(ctx, rec.Entity, rec.ID, domain.IndexOpUpsert); err != nil {
		return err
	}

	s.log.Debug("Record stored", "entity", rec.Entity, "id", rec.ID, "version", rec.Version)
	return nil
}

// Delete removes a record and queues its removal from the search index.
func (s *Service) Delete(ctx context.Context, entity, id string) error {
	if !domain.ValidEntity(entity) || id == "" {
		return fmt.Errorf("%w: entity %q id %q", domain.ErrInvalidRecord, entity, id)
	}

	err := s.do(ctx, "delete_record", func(ctx context.Context) error {
		return s.records.Delete(ctx, entity, id)
	})
	if err != nil {
		return err
	}
	metrics.MutationsTotal.WithLabelValues(entity, "delete").Inc()

	if err := s.enqueue(ctx, entity, id, domain.IndexOpDelete); err != nil {
		return err
	}

	s.log.Debug("Record deleted", "entity", entity, "id", id)
	return nil
}

func (s *Service) enqueue(ctx context.Context, entity, id string, op domain.IndexOp) error {
	job := &domain.IndexJob{Entity: entity, RecordID: id, Op: op}
	return s.do(ctx, "enqueue_index_job", func(ctx context.Context) error {
		return s.queue.Enqueue(ctx, job)
	})
}

// Get returns a record, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, entity, id string) (*domain.Record, error) {
	rec, err := retry.Execute(ctx, func(ctx context.Context) (*domain.Record, error) {
		return s.records.Get(ctx, entity, id)
	}, s.options("get_record")...)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		metrics.OperationErrorsTotal.WithLabelValues("get_record").Inc()
	}
	return rec, err
}

// List returns a page of records ordered by id.
func (s *Service) List(ctx context.Context, entity string, limit, offset int) ([]*domain.Record, error) {
	recs, err := retry.Execute(ctx, func(ctx context.Context) ([]*domain.Record, error) {
		return s.records.List(ctx, entity, limit, offset)
	}, s.options("list_records")...)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("list_records").Inc()
	}
	return recs, err
}
