package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

// Handler executes one job. A nil return acks the job; a retryable error
// (per the error taxonomy) reschedules it against its budget; any other error
// kills it to the dead set. Terminal business outcomes the handler has
// already recorded, such as a payment decline, should return nil.
type Handler func(ctx context.Context, job Job) error

// Worker drains the queue with a fixed pool of goroutines. Stages for
// different orders run concurrently; a single order's stages stay sequential
// because each stage enqueues the next only after committing its own state.
type Worker struct {
	queue       Queue
	handlers    map[string]Handler
	concurrency int
	logg        *logger.Logger
	metrics     *Metrics
}

// WorkerOptions configures the pool.
type WorkerOptions struct {
	Queue       Queue
	Concurrency int
	Logger      *logger.Logger
	Metrics     *Metrics
}

// NewWorker builds a worker pool. Handlers are registered before Run.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       opts.Queue,
		handlers:    make(map[string]Handler),
		concurrency: concurrency,
		logg:        opts.Logger,
		metrics:     opts.Metrics,
	}, nil
}

// Register binds a handler to a job type. Registering a duplicate type is a
// programming error.
func (w *Worker) Register(jobType string, handler Handler) error {
	if jobType == "" {
		return errors.New("job type required")
	}
	if handler == nil {
		return errors.New("handler required")
	}
	if _, exists := w.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for %q", jobType)
	}
	w.handlers[jobType] = handler
	return nil
}

// Run blocks draining the queue until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			return w.loop(ctx)
		})
	}
	return group.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	jobCtx := w.logg.WithFields(ctx, map[string]any{
		"job_id":   job.ID.String(),
		"job_type": job.Type,
		"lane":     job.Lane.String(),
		"attempt":  job.Attempt,
	})

	handler, ok := w.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler registered for %q", job.Type)
		w.logg.Error(jobCtx, "job has no handler", err)
		if killErr := w.queue.Kill(ctx, job, err); killErr != nil {
			w.logg.Error(jobCtx, "failed to dead-letter job", killErr)
		}
		return
	}

	start := time.Now()
	err := handler(jobCtx, job)
	w.metrics.ObserveDuration(job.Lane, job.Type, time.Since(start))

	if err == nil {
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			w.logg.Error(jobCtx, "failed to ack job", ackErr)
		}
		return
	}

	if pkgerrors.IsRetryable(err) {
		w.logg.Warn(w.logg.WithField(jobCtx, "error", err.Error()), "job failed, scheduling retry")
		if retryErr := w.queue.Retry(ctx, job, err); retryErr != nil {
			w.logg.Error(jobCtx, "failed to schedule retry", retryErr)
		}
		return
	}

	w.logg.Error(jobCtx, "job failed terminally", err)
	if killErr := w.queue.Kill(ctx, job, err); killErr != nil {
		w.logg.Error(jobCtx, "failed to dead-letter job", killErr)
	}
}
