package cart

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

type service struct {
	repo    Repository
	catalog catalog.Repository
	logg    *logger.Logger
}

// NewService builds the cart service with the required dependencies.
func NewService(repo Repository, catalogRepo catalog.Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, catalog: catalogRepo, logg: logg}, nil
}

// GetBySession returns the session's cart, creating it on first access.
func (s *service) GetBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	return s.repo.FindOrCreateBySession(ctx, sessionID)
}

// AddItem merges quantity into the session cart's line for the product. The
// merged quantity is bounded by the product's current stock; this is a
// read-then-decide check, not a reservation, so the order assembler
// re-validates at checkout.
func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.Cart, error) {
	if input.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than 0")
	}

	product, err := s.catalog.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}

	cart, err := s.repo.FindOrCreateBySession(ctx, input.SessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}

	existingQty := 0
	var existing *models.CartItem
	line, err := s.repo.FindItem(ctx, cart.ID, input.ProductID)
	switch {
	case err == nil:
		existing = line
		existingQty = line.Quantity
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}

	requested := existingQty + input.Quantity
	if requested > product.InventoryCount {
		return nil, insufficientInventory(product, requested)
	}

	if existing != nil {
		if err := s.repo.UpdateItemQuantity(ctx, existing.ID, requested); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
		}
	} else {
		item := models.CartItem{
			CartID:    cart.ID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
		}
		if err := s.repo.CreateItem(ctx, &item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating cart line")
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id": input.SessionID,
		"product_id": input.ProductID.String(),
		"quantity":   requested,
	}), "cart line updated")

	return s.repo.FindBySession(ctx, input.SessionID)
}

// SetItemQuantity overwrites a line's quantity. Zero or negative removes the
// line; the new quantity is bounded by the product's current stock.
func (s *service) SetItemQuantity(ctx context.Context, input SetItemQuantityInput) (*models.Cart, error) {
	if input.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	cart, err := s.repo.FindBySession(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}

	item, err := s.repo.FindItemByID(ctx, input.CartItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}
	if item.CartID != cart.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if input.Quantity <= 0 {
		if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart line")
		}
		return s.repo.FindBySession(ctx, input.SessionID)
	}

	// The preloaded Product can be missing when the row was deleted after
	// the line was added; re-fetch so the stock bound always applies.
	product := item.Product
	if product == nil {
		product, err = s.catalog.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
		}
	}
	if input.Quantity > product.InventoryCount {
		return nil, insufficientInventory(product, input.Quantity)
	}

	if err := s.repo.UpdateItemQuantity(ctx, item.ID, input.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
	}
	return s.repo.FindBySession(ctx, input.SessionID)
}

func insufficientInventory(product *models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
		fmt.Sprintf("only %d of %q available", product.InventoryCount, product.Name)).
		WithDetails(map[string]any{
			"product_id": product.ID.String(),
			"available":  product.InventoryCount,
			"requested":  requested,
		})
}
