package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lifecart/orderflow-backend/api/middleware"
	"github.com/lifecart/orderflow-backend/api/responses"
	"github.com/lifecart/orderflow-backend/api/validators"
	ordersvc "github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

// OrderCreate assembles the session's cart into an order and queues it for
// fulfillment.
func OrderCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CreateOrder(r.Context(), ordersvc.CreateOrderInput{
			SessionID:        middleware.SessionIDFromContext(r.Context()),
			Email:            payload.Email,
			PaymentMethodRef: payload.PaymentMethodRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(record))
	}
}

// OrderGet serves a single order with its lines.
func OrderGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		record, err := svc.GetOrder(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(record))
	}
}

// OrdersList serves recent orders, optionally filtered by customer email.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.ListOrders(r.Context(), ordersvc.ListFilters{
			UserEmail: strings.TrimSpace(r.URL.Query().Get("user_email")),
			Limit:     limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, 0, len(records))
		for i := range records {
			items = append(items, newOrderResponse(&records[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

type createOrderRequest struct {
	Email            string `json:"email" validate:"required,email"`
	PaymentMethodRef string `json:"payment_method_ref" validate:"required"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	UserEmail     string              `json:"user_email"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Items         []orderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func newOrderResponse(record *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(record.Items))
	for _, item := range record.Items {
		line := orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: item.LineTotal(),
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
		}
		items = append(items, line)
	}

	return orderResponse{
		ID:            record.ID,
		UserEmail:     record.UserEmail,
		Status:        string(record.Status),
		PaymentStatus: string(record.PaymentStatus),
		TotalAmount:   record.TotalAmount,
		Items:         items,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}
