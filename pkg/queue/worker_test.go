package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func runWorker(t *testing.T, q Queue, register func(*Worker)) (stop func()) {
	t.Helper()

	worker, err := NewWorker(WorkerOptions{Queue: q, Concurrency: 2, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	register(worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorkerRoutesJobToHandler(t *testing.T) {
	t.Parallel()

	q := NewMemory(MemoryOptions{})
	defer q.Close()

	var mu sync.Mutex
	handled := map[string]int{}
	record := func(name string) Handler {
		return func(ctx context.Context, job Job) error {
			mu.Lock()
			handled[name]++
			mu.Unlock()
			return nil
		}
	}

	stop := runWorker(t, q, func(w *Worker) {
		if err := w.Register("payment", record("payment")); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := w.Register("inventory", record("inventory")); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	defer stop()

	ctx := context.Background()
	for _, jobType := range []string{"payment", "inventory", "payment"} {
		lane := LaneCritical
		if jobType == "inventory" {
			lane = LaneDefault
		}
		job, err := NewJob(jobType, lane, nil, 3)
		if err != nil {
			t.Fatalf("build job: %v", err)
		}
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := handled["payment"] == 2 && handled["inventory"] == 1
		mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			mu.Lock()
			t.Fatalf("handlers never saw all jobs: %v", handled)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	q := NewMemory(MemoryOptions{RetryBaseDelay: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond})
	defer q.Close()

	var mu sync.Mutex
	attempts := 0

	stop := runWorker(t, q, func(w *Worker) {
		err := w.Register("inventory", func(ctx context.Context, job Job) error {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 3 {
				return pkgerrors.New(pkgerrors.CodeDependency, "store unavailable")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	defer stop()

	job, err := NewJob("inventory", LaneDefault, nil, 5)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := attempts
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 3 attempts, saw %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	deads, err := q.DeadJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("dead jobs: %v", err)
	}
	if len(deads) != 0 {
		t.Fatalf("job that eventually succeeded must not be dead: %v", deads)
	}
}

func TestWorkerKillsNonRetryableFailures(t *testing.T) {
	t.Parallel()

	q := NewMemory(MemoryOptions{RetryBaseDelay: time.Millisecond})
	defer q.Close()

	var mu sync.Mutex
	attempts := 0

	stop := runWorker(t, q, func(w *Worker) {
		err := w.Register("payment", func(ctx context.Context, job Job) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already terminal")
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	defer stop()

	job, err := NewJob("payment", LaneCritical, nil, 3)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		deads, err := q.DeadJobs(context.Background(), 10)
		if err != nil {
			t.Fatalf("dead jobs: %v", err)
		}
		if len(deads) == 1 {
			mu.Lock()
			n := attempts
			mu.Unlock()
			if n != 1 {
				t.Fatalf("non-retryable failure must not be re-run, saw %d attempts", n)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never reached the dead set")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerDeadLettersUnknownJobType(t *testing.T) {
	t.Parallel()

	q := NewMemory(MemoryOptions{})
	defer q.Close()

	stop := runWorker(t, q, func(w *Worker) {})
	defer stop()

	job, err := NewJob("mystery", LaneLow, nil, 3)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		deads, err := q.DeadJobs(context.Background(), 10)
		if err != nil {
			t.Fatalf("dead jobs: %v", err)
		}
		if len(deads) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("unroutable job never reached the dead set")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	q := NewMemory(MemoryOptions{})
	defer q.Close()

	worker, err := NewWorker(WorkerOptions{Queue: q, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := worker.Register("payment", func(context.Context, Job) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := worker.Register("payment", func(context.Context, Job) error { return nil }); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
