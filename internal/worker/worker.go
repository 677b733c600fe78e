package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/metrics"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/pkg/queue"
)

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Recounter repairs an event's participants_count.
type Recounter interface {
	Recount(ctx context.Context, eventID uuid.UUID) (roster.RecountResult, error)
}

// EventIDLister lists every event for the recount sweep.
type EventIDLister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Exporter builds one roster export.
type Exporter interface {
	Run(ctx context.Context, exportID, eventID uuid.UUID) error
}

// Processor runs recount and roster export jobs.
type Processor struct {
	jobs     JobSource
	recounts Recounter
	events   EventIDLister
	exports  Exporter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	backoff  time.Duration
}

// NewProcessor creates a job processor.
func NewProcessor(jobs JobSource, recounts Recounter, events EventIDLister, exports Exporter, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		jobs:     jobs,
		recounts: recounts,
		events:   events,
		exports:  exports,
		metrics:  m,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecountEvent:
		var payload queue.RecountPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.recount(ctx, payload.EventID)
	case queue.JobTypeRecountAll:
		return p.recountAll(ctx)
	case queue.JobTypeRosterExport:
		var payload queue.ExportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.exports.Run(ctx, payload.ExportID, payload.EventID)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) recount(ctx context.Context, eventID uuid.UUID) error {
	res, err := p.recounts.Recount(ctx, eventID)
	if err != nil {
		if models.IsNotFound(err) {
			p.logger.Info("recount skipped, event gone", zap.String("event_id", eventID.String()))
			return nil
		}
		return fmt.Errorf("recount %s: %w", eventID, err)
	}
	p.logger.Debug("recounted event", zap.String("event_id", eventID.String()), zap.Int("before", res.Before), zap.Int("after", res.After))
	return nil
}

// recountAll visits every event; one failure does not stop the sweep.
func (p *Processor) recountAll(ctx context.Context) error {
	ids, err := p.events.ListIDs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := p.recount(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Info("recount sweep finished", zap.Int("events", len(ids)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		err = p.Process(ctx, job)
		p.metrics.JobProcessed(string(job.Type), err)
		if err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
			if reErr := p.jobs.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Schedule calls enqueue every interval until ctx is done.
func Schedule(ctx context.Context, interval time.Duration, logger *zap.Logger, enqueue func(context.Context) error) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := enqueue(ctx); err != nil {
				logger.Warn("scheduled enqueue failed", zap.Error(err))
			}
		}
	}
}
