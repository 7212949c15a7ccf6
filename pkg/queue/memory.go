package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is a channel-free, mutex-guarded in-process queue. It backs tests
// and single-process deployments; the redis implementation carries the same
// semantics across processes.
type Memory struct {
	mu     sync.Mutex
	lanes  map[Lane][]Job
	dead   []DeadJob
	timers []*time.Timer
	closed bool
	notify chan struct{}
	done   chan struct{}

	baseDelay time.Duration
	maxDelay  time.Duration
	metrics   *Metrics
}

// MemoryOptions tunes the in-memory queue.
type MemoryOptions struct {
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Metrics        *Metrics
}

// NewMemory builds an empty in-memory queue.
func NewMemory(opts MemoryOptions) *Memory {
	return &Memory{
		lanes:     make(map[Lane][]Job, len(Lanes())),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		baseDelay: opts.RetryBaseDelay,
		maxDelay:  opts.RetryMaxDelay,
		metrics:   opts.Metrics,
	}
}

// Enqueue places the job on its lane.
func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	if !job.Lane.IsValid() {
		return fmt.Errorf("invalid lane %q", job.Lane)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.lanes[job.Lane] = append(m.lanes[job.Lane], job)
	m.mu.Unlock()

	m.metrics.IncEnqueued(job.Lane, job.Type)
	m.wake()
	return nil
}

// Dequeue blocks until a job is available, draining lanes in priority order.
func (m *Memory) Dequeue(ctx context.Context) (Job, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Job{}, ErrClosed
		}
		for _, lane := range Lanes() {
			pending := m.lanes[lane]
			if len(pending) == 0 {
				continue
			}
			job := pending[0]
			m.lanes[lane] = pending[1:]
			m.mu.Unlock()
			return job, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-m.done:
			return Job{}, ErrClosed
		case <-m.notify:
		}
	}
}

// Ack marks the job finished.
func (m *Memory) Ack(ctx context.Context, job Job) error {
	m.metrics.IncFinished(job.Lane, job.Type)
	return nil
}

// Retry schedules the job for redelivery with backoff, or moves it to the
// dead set when the budget is exhausted.
func (m *Memory) Retry(ctx context.Context, job Job, cause error) error {
	if job.Attempt+1 > job.RetryBudget {
		return m.bury(job, fmt.Sprintf("retry budget exhausted: %v", cause))
	}
	job.Attempt++
	m.metrics.IncRetried(job.Lane, job.Type)

	delay := RetryDelay(job.Attempt, m.baseDelay, m.maxDelay)
	requeued := job

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	timer := time.AfterFunc(delay, func() {
		m.mu.Lock()
		if !m.closed {
			m.lanes[requeued.Lane] = append(m.lanes[requeued.Lane], requeued)
		}
		m.mu.Unlock()
		m.wake()
	})
	m.timers = append(m.timers, timer)
	m.mu.Unlock()
	return nil
}

// Kill moves the job to the dead set immediately.
func (m *Memory) Kill(ctx context.Context, job Job, cause error) error {
	return m.bury(job, fmt.Sprintf("killed: %v", cause))
}

// DeadJobs lists dead jobs, newest first.
func (m *Memory) DeadJobs(ctx context.Context, limit int) ([]DeadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadJob, 0, len(m.dead))
	for i := len(m.dead) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.dead[i])
	}
	return out, nil
}

// Depth reports the number of ready jobs on a lane. Test helper.
func (m *Memory) Depth(lane Lane) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes[lane])
}

// Close stops the queue; blocked Dequeues return ErrClosed and pending retry
// timers are dropped.
func (m *Memory) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	timers := m.timers
	m.timers = nil
	m.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
	close(m.done)
}

func (m *Memory) bury(job Job, reason string) error {
	m.mu.Lock()
	m.dead = append(m.dead, DeadJob{Job: job, Reason: reason, FailedAt: time.Now().UTC()})
	m.mu.Unlock()
	m.metrics.IncDead(job.Lane, job.Type)
	return nil
}

func (m *Memory) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
