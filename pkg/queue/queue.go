package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueJobs is the Redis list key the worker consumes.
	QueueJobs = "worker:jobs"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// dequeueTimeout bounds BLPOP so the worker notices shutdown.
	dequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeRecountEvent JobType = "recount_event"
	JobTypeRecountAll   JobType = "recount_all"
	JobTypeRosterExport JobType = "roster_export"
)

// RecountPayload is the payload for recount_event jobs.
type RecountPayload struct {
	EventID uuid.UUID `json:"event_id"`
}

// ExportPayload is the payload for roster_export jobs.
type ExportPayload struct {
	ExportID uuid.UUID `json:"export_id"`
	EventID  uuid.UUID `json:"event_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client redis.Cmdable, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewJob wraps payload in a fresh envelope.
func NewJob(jobType JobType, payload any) (*Job, error) {
	var body json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = b
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Enqueue pushes a job of the given type. payload may be nil for jobs without arguments.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return job, nil
}

// EnqueueRecount enqueues a recount of one event.
func (q *Queue) EnqueueRecount(ctx context.Context, eventID uuid.UUID) (*Job, error) {
	return q.Enqueue(ctx, JobTypeRecountEvent, RecountPayload{EventID: eventID})
}

// EnqueueRecountAll enqueues a recount sweep over every event.
func (q *Queue) EnqueueRecountAll(ctx context.Context) (*Job, error) {
	return q.Enqueue(ctx, JobTypeRecountAll, nil)
}

// EnqueueExport enqueues a roster export.
func (q *Queue) EnqueueExport(ctx context.Context, exportID, eventID uuid.UUID) (*Job, error) {
	return q.Enqueue(ctx, JobTypeRosterExport, ExportPayload{ExportID: exportID, EventID: eventID})
}

// Dequeue blocks until a job is available, the poll times out or ctx is done.
// A nil job with nil error means nothing was ready.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueJobs).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetters returns up to limit jobs from the DLQ without removing them.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, QueueDLQ, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
