package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/api/middleware"
	internalorders "github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

type stubOrdersService struct {
	order  *models.Order
	orders []models.Order
	events []models.OrderEvent
	next   string
	err    error

	lastUpdate  internalorders.UpdateStatusInput
	lastCancel  internalorders.CancelInput
	lastFilters internalorders.ListFilters
}

func (s *stubOrdersService) Get(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrdersService) List(_ context.Context, _ uuid.UUID, _ pagination.Params, filters internalorders.ListFilters) ([]models.Order, string, error) {
	s.lastFilters = filters
	return s.orders, s.next, s.err
}

func (s *stubOrdersService) Events(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) ([]models.OrderEvent, error) {
	return s.events, s.err
}

func (s *stubOrdersService) UpdateStatus(_ context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
	s.lastUpdate = input
	return s.order, s.err
}

func (s *stubOrdersService) Cancel(_ context.Context, input internalorders.CancelInput) (*models.Order, error) {
	s.lastCancel = input
	return s.order, s.err
}

func authedRequest(method, target string, body io.Reader, userID uuid.UUID, role enums.UserRole) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		OrderNumber: "MN-20260830-AB12CD34",
		Status:      enums.OrderStatusPending,
		Subtotal:    decimal.RequireFromString("500.00"),
		TotalAmount: decimal.RequireFromString("575.00"),
		Currency:    enums.CurrencyETB,
		Items: []models.OrderItem{
			{
				ID:        uuid.New(),
				ProductID: uuid.New(),
				Name:      "Roasted Coffee 1kg",
				SKU:       "COF-1KG",
				UnitPrice: decimal.RequireFromString("250.00"),
				Quantity:  2,
				LineTotal: decimal.RequireFromString("500.00"),
			},
		},
	}
}

func TestListOrdersReturnsPage(t *testing.T) {
	order := sampleOrder()
	svc := &stubOrdersService{orders: []models.Order{*order}, next: "cursor-token"}
	handler := ListOrders(svc, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=10", nil, uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data orderListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(envelope.Data.Orders))
	}
	if envelope.Data.Orders[0].OrderNumber != order.OrderNumber {
		t.Fatalf("unexpected order number: %s", envelope.Data.Orders[0].OrderNumber)
	}
	if envelope.Data.NextCursor != "cursor-token" {
		t.Fatalf("unexpected cursor: %s", envelope.Data.NextCursor)
	}
}

func TestListOrdersParsesStatusFilter(t *testing.T) {
	svc := &stubOrdersService{}
	handler := ListOrders(svc, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/orders?status=delivered", nil, uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastFilters.Status == nil || *svc.lastFilters.Status != enums.OrderStatusDelivered {
		t.Fatalf("unexpected filter: %+v", svc.lastFilters)
	}

	req = authedRequest(http.MethodGet, "/api/v1/orders?status=teleported", nil, uuid.New(), enums.UserRoleCustomer)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.Code)
	}
}

func TestListOrdersRequiresIdentity(t *testing.T) {
	handler := ListOrders(&stubOrdersService{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderDetailIncludesItems(t *testing.T) {
	order := sampleOrder()
	handler := OrderDetail(&stubOrdersService{order: order}, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil, order.UserID, enums.UserRoleCustomer)
	req = withOrderParam(req, order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(envelope.Data.Items))
	}
	if envelope.Data.Items[0].SKU != "COF-1KG" {
		t.Fatalf("unexpected sku: %s", envelope.Data.Items[0].SKU)
	}
}

func TestOrderDetailRejectsBadID(t *testing.T) {
	handler := OrderDetail(&stubOrdersService{order: sampleOrder()}, testLogger())
	req := authedRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, "not-a-uuid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderDetailPropagatesForbidden(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")}
	handler := OrderDetail(svc, testLogger())
	orderID := uuid.New()
	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCancelOrderPassesReason(t *testing.T) {
	order := sampleOrder()
	order.Status = enums.OrderStatusCancelled
	svc := &stubOrdersService{order: order}
	handler := CancelOrder(svc, testLogger())

	userID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", strings.NewReader(`{"reason":"changed my mind"}`), userID, enums.UserRoleCustomer)
	req = withOrderParam(req, order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastCancel.Reason != "changed my mind" {
		t.Fatalf("unexpected reason: %q", svc.lastCancel.Reason)
	}
	if svc.lastCancel.ActorUserID != userID {
		t.Fatalf("unexpected actor: %s", svc.lastCancel.ActorUserID)
	}
}

func TestCancelOrderAllowsEmptyBody(t *testing.T) {
	svc := &stubOrdersService{order: sampleOrder()}
	handler := CancelOrder(svc, testLogger())
	orderID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", nil, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestOrderEventsReturnsTrail(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{events: []models.OrderEvent{
		{ID: uuid.New(), OrderID: orderID, EventType: enums.OrderEventTypeCreated, Status: enums.OrderStatusPending, Description: "order created"},
		{ID: uuid.New(), OrderID: orderID, EventType: enums.OrderEventTypeStatusChanged, Status: enums.OrderStatusPaid, Description: "status changed"},
	}}
	handler := OrderEvents(svc, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/events", nil, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Events []orderEventResponse `json:"events"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(envelope.Data.Events))
	}
	if envelope.Data.Events[1].EventType != string(enums.OrderEventTypeStatusChanged) {
		t.Fatalf("unexpected event type: %s", envelope.Data.Events[1].EventType)
	}
}
