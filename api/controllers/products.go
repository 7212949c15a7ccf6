package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/api/responses"
	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

// ProductsList serves the catalog read model, optionally filtered by
// category and availability.
func ProductsList(repo catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		filters, err := parseProductFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := repo.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]productResponse, 0, len(records))
		for _, record := range records {
			items = append(items, newProductResponse(record))
		}
		responses.WriteSuccess(w, items)
	}
}

// ProductGet serves a single catalog listing by id.
func ProductGet(repo catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		record, err := repo.FindByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProductResponse(*record))
	}
}

func parseProductFilters(r *http.Request) (catalog.ProductFilters, error) {
	filters := catalog.ProductFilters{}

	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		category, err := enums.ParseProductCategory(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category").WithDetails(map[string]any{"field": "category"})
		}
		filters.Category = &category
	}

	switch strings.TrimSpace(r.URL.Query().Get("in_stock")) {
	case "", "false":
	case "true":
		filters.InStock = true
	default:
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a boolean").WithDetails(map[string]any{"field": "in_stock"})
	}

	return filters, nil
}

type productResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount int             `json:"inventory_count"`
	Category       string          `json:"category"`
	InStock        bool            `json:"in_stock"`
	LowStock       bool            `json:"low_stock"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newProductResponse(record models.Product) productResponse {
	return productResponse{
		ID:             record.ID,
		Name:           record.Name,
		Price:          record.Price,
		InventoryCount: record.InventoryCount,
		Category:       string(record.Category),
		InStock:        record.InStock(),
		LowStock:       record.LowStock(),
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}
