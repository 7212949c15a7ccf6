package fulfillment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/config"
	dbpkg "github.com/lifecart/orderflow-backend/pkg/db"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/mailer"
	"github.com/lifecart/orderflow-backend/pkg/payment"
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

func setupPipelineTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:fulfillment_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  inventory_count INTEGER NOT NULL DEFAULT 0,
  category TEXT NOT NULL,
  lifecycle_stage TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_email TEXT NOT NULL,
  payment_method_ref TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  total_amount NUMERIC NOT NULL,
  inventory_adjusted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  price NUMERIC NOT NULL,
  created_at DATETIME
);`,
	} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

type capturingMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
	failures int
}

func (m *capturingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("smtp connection reset")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *capturingMailer) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.messages...)
}

type pipelineEnv struct {
	conn        *gorm.DB
	queue       *queue.Memory
	ordersRepo  orders.Repository
	catalogRepo catalog.Repository
	mailer      *capturingMailer
	logg        *logger.Logger
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	conn := setupPipelineTestDB(t)
	q := queue.NewMemory(queue.MemoryOptions{RetryBaseDelay: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond})
	t.Cleanup(q.Close)
	return &pipelineEnv{
		conn:        conn,
		queue:       q,
		ordersRepo:  orders.NewRepository(conn),
		catalogRepo: catalog.NewRepository(conn),
		mailer:      &capturingMailer{},
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
}

func (e *pipelineEnv) stages(t *testing.T, gateway payment.Gateway) Stages {
	t.Helper()
	paymentStage, err := NewPaymentStage(e.ordersRepo, gateway, e.queue, e.logg)
	require.NoError(t, err)
	inventoryStage, err := NewInventoryStage(e.ordersRepo, e.catalogRepo, dbpkg.NewWithConn(e.conn), e.logg)
	require.NoError(t, err)
	notificationStage, err := NewNotificationStage(e.ordersRepo, e.mailer, testEmailConfig(), e.logg)
	require.NoError(t, err)
	return Stages{Payment: paymentStage, Inventory: inventoryStage, Notification: notificationStage}
}

func (e *pipelineEnv) seedOrder(t *testing.T, stock, qty int, price float64) (*models.Order, *models.Product) {
	t.Helper()
	ctx := context.Background()

	product, err := e.catalogRepo.Create(ctx, &models.Product{
		Name:           "Green Tea",
		Price:          decimal.NewFromFloat(price),
		InventoryCount: stock,
		Category:       enums.CategoryWellness,
	})
	require.NoError(t, err)

	order, err := e.ordersRepo.Create(ctx, &models.Order{
		UserEmail:        "customer@example.com",
		PaymentMethodRef: "pm_test",
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		TotalAmount:      decimal.NewFromFloat(price * float64(qty)),
	})
	require.NoError(t, err)
	require.NoError(t, e.ordersRepo.CreateItems(ctx, []models.OrderItem{{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  qty,
		Price:     decimal.NewFromFloat(price),
	}}))
	return order, product
}

func paymentJobFor(t *testing.T, order *models.Order) queue.Job {
	t.Helper()
	job, err := NewPaymentJob(order.ID, order.PaymentMethodRef)
	require.NoError(t, err)
	return job
}

func TestPaymentStageApprovalChainsFollowUps(t *testing.T) {
	env := newPipelineEnv(t)
	gateway := &payment.Static{Outcome: payment.AlwaysApprove}
	stages := env.stages(t, gateway)
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 2, 10.00)

	require.NoError(t, stages.Payment.Handle(ctx, paymentJobFor(t, order)))

	reloaded, err := env.ordersRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)

	assert.Equal(t, 1, env.queue.Depth(queue.LaneDefault), "inventory stage enqueued")
	assert.Equal(t, 1, env.queue.Depth(queue.LaneLow), "notification stage enqueued")
	assert.Equal(t, 1, gateway.Calls)
}

func TestStageLogsCarryJobAndOrderIDs(t *testing.T) {
	env := newPipelineEnv(t)
	var logs bytes.Buffer
	env.logg = logger.New(logger.Options{ServiceName: "test", Output: &logs})
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 2, 10.00)
	job := paymentJobFor(t, order)

	require.NoError(t, stages.Payment.Handle(ctx, job))

	assert.Contains(t, logs.String(), fmt.Sprintf(`"job_id":"%s"`, job.ID))
	assert.Contains(t, logs.String(), fmt.Sprintf(`"order_id":"%s"`, order.ID))
}

func TestPaymentStageDeclineTerminatesChain(t *testing.T) {
	env := newPipelineEnv(t)
	gateway := &payment.Static{Outcome: payment.AlwaysDecline}
	stages := env.stages(t, gateway)
	ctx := context.Background()

	order, product := env.seedOrder(t, 5, 2, 10.00)

	// A decline is a terminal business outcome: the handler acks the job.
	require.NoError(t, stages.Payment.Handle(ctx, paymentJobFor(t, order)))

	reloaded, err := env.ordersRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusFailed, reloaded.PaymentStatus)

	assert.Zero(t, env.queue.Depth(queue.LaneDefault), "no inventory stage after a decline")
	assert.Zero(t, env.queue.Depth(queue.LaneLow), "no notification stage after a decline")

	// And the later stages stay inert even if poked directly.
	invJob, err := NewInventoryJob(order.ID)
	require.NoError(t, err)
	require.NoError(t, stages.Inventory.Handle(ctx, invJob))
	found, err := env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, found.InventoryCount, "failed order must not debit stock")
}

func TestPaymentStageTransientErrorRetries(t *testing.T) {
	env := newPipelineEnv(t)
	gateway := &payment.Static{Outcome: payment.AlwaysError}
	stages := env.stages(t, gateway)
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 2, 10.00)

	err := stages.Payment.Handle(ctx, paymentJobFor(t, order))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err), "processor outages must retry")

	reloaded, findErr := env.ordersRepo.FindByID(ctx, order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPending, reloaded.Status, "order untouched until a definitive outcome")
}

func TestPaymentStageRedeliveryAfterCapture(t *testing.T) {
	env := newPipelineEnv(t)
	gateway := &payment.Static{Outcome: payment.AlwaysApprove}
	stages := env.stages(t, gateway)
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 2, 10.00)
	require.NoError(t, env.ordersRepo.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateConfirmed))

	require.NoError(t, stages.Payment.Handle(ctx, paymentJobFor(t, order)))

	assert.Zero(t, gateway.Calls, "a captured order must not be charged again")
	assert.Equal(t, 1, env.queue.Depth(queue.LaneDefault), "follow-ups re-chained on redelivery")
	assert.Equal(t, 1, env.queue.Depth(queue.LaneLow))
}

func TestInventoryStageDebitsOnce(t *testing.T) {
	env := newPipelineEnv(t)
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	order, product := env.seedOrder(t, 5, 2, 10.00)
	require.NoError(t, env.ordersRepo.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateConfirmed))

	job, err := NewInventoryJob(order.ID)
	require.NoError(t, err)

	require.NoError(t, stages.Inventory.Handle(ctx, job))
	found, err := env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.InventoryCount)

	// Redelivery must not debit twice.
	require.NoError(t, stages.Inventory.Handle(ctx, job))
	found, err = env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.InventoryCount, "inventory debit is exactly-once per order")
}

func TestInventoryStageShortfallIsRetryable(t *testing.T) {
	env := newPipelineEnv(t)
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	// Paid for 2 units but only 1 remains: an oversell race lost.
	order, product := env.seedOrder(t, 1, 2, 10.00)
	require.NoError(t, env.ordersRepo.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateConfirmed))

	job, err := NewInventoryJob(order.ID)
	require.NoError(t, err)

	handleErr := stages.Inventory.Handle(ctx, job)
	require.Error(t, handleErr)
	typed := pkgerrors.As(handleErr)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInventoryShortfall, typed.Code())
	assert.True(t, pkgerrors.IsRetryable(handleErr))

	found, err := env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.InventoryCount, "aborted transaction must not change stock")

	reloaded, err := env.ordersRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status, "payment stays captured across the shortfall")
	assert.Nil(t, reloaded.InventoryAdjustedAt, "rolled-back claim frees the retry to run")

	// Operator restocks; the retry succeeds.
	require.NoError(t, env.conn.Model(&models.Product{}).Where("id = ?", product.ID).Update("inventory_count", 2).Error)
	require.NoError(t, stages.Inventory.Handle(ctx, job))
	found, err = env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.InventoryCount)
}

func TestNotificationStageDeliversConfirmation(t *testing.T) {
	env := newPipelineEnv(t)
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 2, 10.00)
	require.NoError(t, env.ordersRepo.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateConfirmed))

	job, err := NewNotificationJob(order.ID)
	require.NoError(t, err)
	require.NoError(t, stages.Notification.Handle(ctx, job))

	sent := env.mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "customer@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "Green Tea x2 - $20.00")
	assert.Contains(t, sent[0].Body, "Total: $20.00")
	assert.Contains(t, sent[0].Body, "Status: Confirmed")
}

func TestNotificationStageTransientFailureRetries(t *testing.T) {
	env := newPipelineEnv(t)
	env.mailer.failures = 1
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	order, _ := env.seedOrder(t, 5, 1, 10.00)

	job, err := NewNotificationJob(order.ID)
	require.NoError(t, err)

	handleErr := stages.Notification.Handle(ctx, job)
	require.Error(t, handleErr)
	assert.True(t, pkgerrors.IsRetryable(handleErr))

	require.NoError(t, stages.Notification.Handle(ctx, job))
	assert.Len(t, env.mailer.sent(), 1)
}

func TestPipelineEndToEndThroughWorker(t *testing.T) {
	env := newPipelineEnv(t)
	stages := env.stages(t, &payment.Static{Outcome: payment.AlwaysApprove})
	ctx := context.Background()

	order, product := env.seedOrder(t, 5, 2, 12.50)

	worker, err := queue.NewWorker(queue.WorkerOptions{Queue: env.queue, Concurrency: 2, Logger: env.logg})
	require.NoError(t, err)
	require.NoError(t, stages.Register(worker))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, env.queue.Enqueue(ctx, paymentJobFor(t, order)))

	deadline := time.After(3 * time.Second)
	for {
		if len(env.mailer.sent()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pipeline never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	reloaded, err := env.ordersRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)

	found, err := env.catalogRepo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.InventoryCount)

	sum := decimal.Zero
	for _, item := range reloaded.Items {
		sum = sum.Add(item.LineTotal())
	}
	assert.True(t, sum.Equal(reloaded.TotalAmount), "total invariant holds after the full pipeline")
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{FromAddress: "orders@lifecart.example", FromName: "Lifecart Orders"}
}
