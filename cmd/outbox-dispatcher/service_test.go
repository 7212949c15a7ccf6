package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/fulfillment"
	"github.com/lifecart/orderflow-backend/pkg/config"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/outbox"
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

type fakeRepo struct {
	events []models.OutboxEvent

	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQRepo struct {
	entries []*models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry *models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeQueue struct {
	jobs []queue.Job
	errs []error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job queue.Job) error {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(ctx context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, repo *fakeRepo, dlq *fakeDLQRepo, q *fakeQueue, maxAttempts int) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.PollIntervalMS = 10
	cfg.Outbox.MaxAttempts = maxAttempts

	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            fakeDB{},
		Repository:    repo,
		DLQRepository: dlq,
		Queue:         q,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func orderCreatedEvent(t *testing.T, orderID uuid.UUID) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(outbox.OrderCreatedData{
		OrderID:          orderID.String(),
		UserEmail:        "shopper@example.com",
		PaymentMethodRef: "pm_123",
		TotalAmount:      decimal.RequireFromString("25.00"),
		ItemCount:        3,
	})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
	}
}

func TestProcessBatchDispatchesPaymentJob(t *testing.T) {
	orderID := uuid.New()
	repo := &fakeRepo{events: []models.OutboxEvent{orderCreatedEvent(t, orderID)}}
	q := &fakeQueue{}
	service := newTestService(t, repo, &fakeDLQRepo{}, q, 10)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Type != fulfillment.JobTypePayment {
		t.Fatalf("unexpected job type %q", job.Type)
	}
	if job.Lane != queue.LaneCritical {
		t.Fatalf("payment job should ride the critical lane, got %q", job.Lane)
	}

	var payload fulfillment.PaymentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode job payload: %v", err)
	}
	if payload.OrderID != orderID {
		t.Fatalf("job carries wrong order id")
	}
	if payload.PaymentMethodRef != "pm_123" {
		t.Fatalf("job carries wrong payment method ref")
	}

	if len(repo.published) != 1 || repo.published[0] != repo.events[0].ID {
		t.Fatalf("event not marked published")
	}
}

func TestProcessBatchContinuesAfterEnqueueFailure(t *testing.T) {
	first := orderCreatedEvent(t, uuid.New())
	second := orderCreatedEvent(t, uuid.New())
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	q := &fakeQueue{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, &fakeDLQRepo{}, q, 10)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("first event should be marked failed")
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("second event should be published")
	}
}

func TestDispatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := orderCreatedEvent(t, uuid.New())
	event.AttemptCount = 4
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	q := &fakeQueue{errs: []error{errors.New("queue down")}}
	service := newTestService(t, repo, dlq, q, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("event should be marked terminal")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %q", entry.ErrorReason)
	}
	if entry.EventID != event.ID {
		t.Fatalf("dlq entry carries wrong event id")
	}
}

func TestDispatchDeadLettersMalformedPayload(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":"not-an-object"`),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	q := &fakeQueue{}
	service := newTestService(t, repo, dlq, q, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("malformed event must not reach the queue")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("malformed event should dead-letter as non-retryable")
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("malformed event should be marked terminal")
	}
}

func TestDispatchDeadLettersUnknownEventType(t *testing.T) {
	event := orderCreatedEvent(t, uuid.New())
	event.EventType = "order.refunded"
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, dlq, &fakeQueue{}, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unknown event type should dead-letter as non-retryable")
	}
}
