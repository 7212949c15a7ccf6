package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lane is a priority partition of the queue. Workers drain lanes strictly in
// priority order: critical before default before low.
type Lane string

const (
	LaneCritical Lane = "critical"
	LaneDefault  Lane = "default"
	LaneLow      Lane = "low"
)

// Lanes returns all lanes in worker pickup order.
func Lanes() []Lane {
	return []Lane{LaneCritical, LaneDefault, LaneLow}
}

// IsValid reports whether the value is a known Lane.
func (l Lane) IsValid() bool {
	switch l {
	case LaneCritical, LaneDefault, LaneLow:
		return true
	}
	return false
}

func (l Lane) String() string {
	return string(l)
}

// Job is one unit of asynchronous work. Attempt counts executions so far; a
// job whose Attempt reaches RetryBudget after a retryable failure moves to
// the dead set instead of being requeued.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Lane        Lane            `json:"lane"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	RetryBudget int             `json:"retry_budget"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// NewJob builds a job with a fresh id, marshaling the payload.
func NewJob(jobType string, lane Lane, payload any, retryBudget int) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:          uuid.New(),
		Type:        jobType,
		Lane:        lane,
		Payload:     raw,
		RetryBudget: retryBudget,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// DeadJob is a job that exhausted its retry budget or failed terminally. Dead
// jobs are kept for operator inspection, never silently dropped.
type DeadJob struct {
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// ErrClosed is returned by blocking operations after the queue shuts down.
var ErrClosed = errors.New("queue closed")

// Queue is the priority job dispatcher the fulfillment pipeline runs on.
// Delivery is at-least-once: a job handed to a consumer that is neither Acked
// nor Retried before a crash may be redelivered by an operator requeue.
type Queue interface {
	// Enqueue places the job on its lane, ready for immediate pickup.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available on any lane, always preferring
	// the highest-priority non-empty lane, or until ctx is done.
	Dequeue(ctx context.Context) (Job, error)
	// Ack marks the job finished. Terminal business outcomes ack too; only
	// transient failures go back through Retry.
	Ack(ctx context.Context, job Job) error
	// Retry schedules the job for redelivery with backoff, consuming one
	// attempt. When the retry budget is exhausted the job is moved to the
	// dead set instead.
	Retry(ctx context.Context, job Job, cause error) error
	// Kill moves the job to the dead set immediately, bypassing the budget.
	Kill(ctx context.Context, job Job, cause error) error
	// DeadJobs lists dead jobs for operator visibility, newest first.
	DeadJobs(ctx context.Context, limit int) ([]DeadJob, error)
}
