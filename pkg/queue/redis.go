package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDequeueTimeout = 2 * time.Second
	schedulePromoteBatch  = 100
	deadListMax           = 10_000
)

// Redis is a list-backed priority queue. Jobs LPUSH onto their lane and
// BRPOP off the other end, so each lane drains oldest-first; BRPOP scans the
// keys in lane-priority order, so critical always drains before default and
// low. Retries park in a sorted set scored by their ready time and are
// promoted back onto their lane on the next dequeue pass.
type Redis struct {
	client    *redis.Client
	namespace string

	dequeueTimeout time.Duration
	baseDelay      time.Duration
	maxDelay       time.Duration
	metrics        *Metrics
}

// RedisOptions tunes the redis queue.
type RedisOptions struct {
	Namespace      string
	DequeueTimeout time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Metrics        *Metrics
}

// NewRedis builds a queue on top of the provided redis client.
func NewRedis(client *redis.Client, opts RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "orderflow"
	}
	timeout := opts.DequeueTimeout
	if timeout <= 0 {
		timeout = defaultDequeueTimeout
	}
	return &Redis{
		client:         client,
		namespace:      namespace,
		dequeueTimeout: timeout,
		baseDelay:      opts.RetryBaseDelay,
		maxDelay:       opts.RetryMaxDelay,
		metrics:        opts.Metrics,
	}, nil
}

func (r *Redis) laneKey(lane Lane) string {
	return fmt.Sprintf("%s:queue:%s", r.namespace, lane)
}

func (r *Redis) scheduledKey() string {
	return r.namespace + ":scheduled"
}

func (r *Redis) deadKey() string {
	return r.namespace + ":dead"
}

// Enqueue places the job on its lane.
func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	if !job.Lane.IsValid() {
		return fmt.Errorf("invalid lane %q", job.Lane)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.client.LPush(ctx, r.laneKey(job.Lane), raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	r.metrics.IncEnqueued(job.Lane, job.Type)
	return nil
}

// Dequeue blocks until a job is ready on any lane. Each pass first promotes
// due retries, then BRPOPs across the lane keys in priority order with a
// bounded timeout so promotion and cancellation stay responsive.
func (r *Redis) Dequeue(ctx context.Context) (Job, error) {
	keys := make([]string, 0, len(Lanes()))
	for _, lane := range Lanes() {
		keys = append(keys, r.laneKey(lane))
	}

	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		if err := r.promoteDue(ctx); err != nil {
			return Job{}, err
		}

		res, err := r.client.BRPop(ctx, r.dequeueTimeout, keys...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Job{}, fmt.Errorf("dequeue: %w", err)
		}
		// res is [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Ack marks the job finished. The BRPOP already removed it from its lane.
func (r *Redis) Ack(ctx context.Context, job Job) error {
	r.metrics.IncFinished(job.Lane, job.Type)
	return nil
}

// Retry parks the job in the scheduled set with backoff, or moves it to the
// dead list when the budget is exhausted.
func (r *Redis) Retry(ctx context.Context, job Job, cause error) error {
	if job.Attempt+1 > job.RetryBudget {
		return r.bury(ctx, job, fmt.Sprintf("retry budget exhausted: %v", cause))
	}
	job.Attempt++

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	readyAt := time.Now().Add(RetryDelay(job.Attempt, r.baseDelay, r.maxDelay))
	member := redis.Z{Score: float64(readyAt.UnixMilli()), Member: raw}
	if err := r.client.ZAdd(ctx, r.scheduledKey(), member).Err(); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	r.metrics.IncRetried(job.Lane, job.Type)
	return nil
}

// Kill moves the job to the dead list immediately.
func (r *Redis) Kill(ctx context.Context, job Job, cause error) error {
	return r.bury(ctx, job, fmt.Sprintf("killed: %v", cause))
}

// DeadJobs lists dead jobs, newest first.
func (r *Redis) DeadJobs(ctx context.Context, limit int) ([]DeadJob, error) {
	if limit <= 0 {
		limit = deadListMax
	}
	rows, err := r.client.LRange(ctx, r.deadKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	out := make([]DeadJob, 0, len(rows))
	for _, row := range rows {
		var dead DeadJob
		if err := json.Unmarshal([]byte(row), &dead); err != nil {
			return nil, fmt.Errorf("decode dead job: %w", err)
		}
		out = append(out, dead)
	}
	return out, nil
}

// promoteDue moves retries whose ready time has passed back onto their lane.
func (r *Redis) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	rows, err := r.client.ZRangeByScore(ctx, r.scheduledKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: schedulePromoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan scheduled: %w", err)
	}

	for _, row := range rows {
		// Remove first so two workers promoting concurrently cannot both
		// requeue the same member.
		removed, err := r.client.ZRem(ctx, r.scheduledKey(), row).Result()
		if err != nil {
			return fmt.Errorf("remove scheduled: %w", err)
		}
		if removed == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(row), &job); err != nil {
			return fmt.Errorf("decode scheduled job: %w", err)
		}
		if err := r.client.LPush(ctx, r.laneKey(job.Lane), row).Err(); err != nil {
			return fmt.Errorf("promote scheduled: %w", err)
		}
	}
	return nil
}

func (r *Redis) bury(ctx context.Context, job Job, reason string) error {
	dead := DeadJob{Job: job, Reason: reason, FailedAt: time.Now().UTC()}
	raw, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.deadKey(), raw)
	pipe.LTrim(ctx, r.deadKey(), 0, deadListMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bury job: %w", err)
	}
	r.metrics.IncDead(job.Lane, job.Type)
	return nil
}
