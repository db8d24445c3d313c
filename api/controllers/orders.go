package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/api/responses"
	"github.com/minalesh/marketplace-backend/api/validators"
	internalorders "github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/pagination"
	"github.com/minalesh/marketplace-backend/pkg/types"
)

// ListOrders pages the caller's own orders, newest first.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, _, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		var filters internalorders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		orders, next, err := svc.List(r.Context(), userID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]orderResponse, 0, len(orders))
		for i := range orders {
			items = append(items, newOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, orderListResponse{Orders: items, NextCursor: next})
	}
}

// OrderDetail returns one order with its line items.
func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderEvents returns the order's audit trail.
func OrderEvents(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.Events(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]orderEventResponse, 0, len(events))
		for i := range events {
			items = append(items, newOrderEventResponse(events[i]))
		}
		responses.WriteSuccess(w, map[string]any{"events": items})
	}
}

// CancelOrder cancels a still-cancellable order and releases its held stock.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:     orderID,
			ActorUserID: userID,
			ActorRole:   role,
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	ShippingAmount  decimal.Decimal     `json:"shipping_amount"`
	TaxAmount       decimal.Decimal     `json:"tax_amount"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Currency        string              `json:"currency"`
	CapturedAmount  *decimal.Decimal    `json:"captured_amount,omitempty"`
	ShippingAddress *types.Address      `json:"shipping_address,omitempty"`
	Items           []orderItemResponse `json:"items,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ItemID    uuid.UUID       `json:"item_id"`
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type orderEventResponse struct {
	EventID     uuid.UUID     `json:"event_id"`
	EventType   string        `json:"event_type"`
	Status      string        `json:"status"`
	Description string        `json:"description"`
	Metadata    types.JSONMap `json:"metadata,omitempty"`
	ActorUserID *uuid.UUID    `json:"actor_user_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return orderResponse{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		Subtotal:        order.Subtotal,
		DiscountAmount:  order.DiscountAmount,
		ShippingAmount:  order.ShippingAmount,
		TaxAmount:       order.TaxAmount,
		TotalAmount:     order.TotalAmount,
		Currency:        string(order.Currency),
		CapturedAmount:  order.CapturedAmount,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		PaidAt:          order.PaidAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
}

func newOrderEventResponse(event models.OrderEvent) orderEventResponse {
	return orderEventResponse{
		EventID:     event.ID,
		EventType:   string(event.EventType),
		Status:      string(event.Status),
		Description: event.Description,
		Metadata:    event.Metadata,
		ActorUserID: event.ActorUserID,
		CreatedAt:   event.CreatedAt,
	}
}
