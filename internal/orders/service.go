package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/cart"
	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitOrderCreated(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, data outbox.OrderCreatedData) error
}

type service struct {
	repo     Repository
	cartRepo cart.Repository
	catalog  catalog.Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	validate *validator.Validate
}

// NewService builds the order assembler with the required dependencies.
func NewService(repo Repository, cartRepo cart.Repository, catalogRepo catalog.Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		cartRepo: cartRepo,
		catalog:  catalogRepo,
		tx:       tx,
		outbox:   publisher,
		logg:     logg,
		validate: validator.New(),
	}, nil
}

// CreateOrder converts the session's cart into an immutable order. Line
// quantities are re-validated against live inventory, then the order, its
// price-snapshotted items, the cart clear, and the order.created outbox event
// commit in one transaction. The outbox dispatcher enqueues payment after
// commit, so a committed order is never lost and an uncommitted order is
// never charged.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if err := s.validate.Var(input.Email, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if input.PaymentMethodRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}

	loaded, err := s.cartRepo.FindBySession(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	if loaded.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	if err := s.revalidateInventory(ctx, loaded); err != nil {
		return nil, err
	}

	var order *models.Order
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cartRepo := s.cartRepo.WithTx(tx)

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(loaded.Items))
		for _, line := range loaded.Items {
			if line.Product == nil {
				return pkgerrors.New(pkgerrors.CodeInternal, "cart line missing product")
			}
			items = append(items, models.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Product.Price,
			})
			total = total.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		created, err := repo.Create(ctx, &models.Order{
			UserEmail:        input.Email,
			PaymentMethodRef: input.PaymentMethodRef,
			Status:           StatePending.Status,
			PaymentStatus:    StatePending.PaymentStatus,
			TotalAmount:      total,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}
		for i := range items {
			items[i].OrderID = created.ID
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order items")
		}
		if err := cartRepo.ClearItems(ctx, loaded.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
		}
		if err := s.outbox.EmitOrderCreated(ctx, tx, created.ID, outbox.OrderCreatedData{
			OrderID:          created.ID.String(),
			UserEmail:        created.UserEmail,
			PaymentMethodRef: created.PaymentMethodRef,
			TotalAmount:      created.TotalAmount,
			ItemCount:        len(items),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting order event")
		}

		order = created
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	return s.repo.FindByID(ctx, order.ID)
}

// revalidateInventory checks every line against the product's current stock.
// All offending lines are reported together so the shopper can fix the whole
// cart in one pass.
func (s *service) revalidateInventory(ctx context.Context, loaded *models.Cart) error {
	ids := make([]uuid.UUID, 0, len(loaded.Items))
	for _, line := range loaded.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var shortfalls error
	offending := make([]map[string]any, 0)
	for _, line := range loaded.Items {
		product, ok := byID[line.ProductID]
		if !ok {
			shortfalls = multierr.Append(shortfalls,
				fmt.Errorf("product %s no longer exists", line.ProductID))
			offending = append(offending, map[string]any{
				"product_id": line.ProductID.String(),
				"available":  0,
				"requested":  line.Quantity,
			})
			continue
		}
		if line.Quantity > product.InventoryCount {
			shortfalls = multierr.Append(shortfalls,
				fmt.Errorf("only %d of %q available, cart has %d", product.InventoryCount, product.Name, line.Quantity))
			offending = append(offending, map[string]any{
				"product_id": product.ID.String(),
				"name":       product.Name,
				"available":  product.InventoryCount,
				"requested":  line.Quantity,
			})
		}
	}
	if shortfalls != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientInventory, shortfalls, "insufficient inventory").
			WithDetails(map[string]any{"products": offending})
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters) ([]models.Order, error) {
	return s.repo.List(ctx, filters)
}
