package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/pagination"
)

type stubReleaser struct {
	calls []uuid.UUID
	count int64
}

func (s *stubReleaser) ReleaseByOrder(_ context.Context, _ *gorm.DB, orderID uuid.UUID) (int64, error) {
	s.calls = append(s.calls, orderID)
	return s.count, nil
}

type stubNotifier struct {
	stages []enums.TrackingStage
	orders []uuid.UUID
}

func (s *stubNotifier) Notify(_ context.Context, orderID, _ uuid.UUID, stage enums.TrackingStage) {
	s.orders = append(s.orders, orderID)
	s.stages = append(s.stages, stage)
}

type serviceHarness struct {
	db       *gorm.DB
	svc      Service
	releaser *stubReleaser
	notifier *stubNotifier
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.OrderEvent{}, &models.InventoryReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	releaser := &stubReleaser{count: 1}
	notifier := &stubNotifier{}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Level: zerolog.ErrorLevel, Output: io.Discard})
	svc, err := NewService(NewRepository(conn), db.NewWithConn(conn), releaser, notifier, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &serviceHarness{db: conn, svc: svc, releaser: releaser, notifier: notifier}
}

func seedOrder(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		OrderNumber: "MN-" + uuid.NewString()[:8],
		Status:      status,
		Subtotal:    decimal.NewFromInt(100),
		TotalAmount: decimal.NewFromInt(115),
		Currency:    enums.CurrencyETB,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestUpdateStatusWritesTimestampAndEvent(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := seedOrder(t, h.db, buyer, enums.OrderStatusPending)

	updated, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:     order.ID,
		NextStatus:  enums.OrderStatusPaid,
		ActorUserID: buyer,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", updated.Status)
	}
	if updated.PaidAt == nil {
		t.Fatal("paid_at must be stamped on transition")
	}

	var stored models.Order
	if err := h.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if stored.Status != enums.OrderStatusPaid || stored.PaidAt == nil {
		t.Fatalf("persisted order out of sync: %s", stored.Status)
	}

	var events []models.OrderEvent
	if err := h.db.Where("order_id = ?", order.ID).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != enums.OrderEventTypeStatusChanged {
		t.Fatalf("expected one status event, got %+v", events)
	}
	if events[0].Metadata["from"] != "pending" || events[0].Metadata["to"] != "paid" {
		t.Fatalf("event must record both statuses, got %#v", events[0].Metadata)
	}

	// paid has no tracking stage.
	if len(h.notifier.stages) != 0 {
		t.Fatalf("unexpected notifications: %v", h.notifier.stages)
	}

	if _, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:     order.ID,
		NextStatus:  enums.OrderStatusConfirmed,
		ActorUserID: buyer,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(h.notifier.stages) != 1 || h.notifier.stages[0] != enums.TrackingStageConfirmed {
		t.Fatalf("expected confirmed notification, got %v", h.notifier.stages)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	order := seedOrder(t, h.db, uuid.New(), enums.OrderStatusPending)

	_, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:     order.ID,
		NextStatus:  enums.OrderStatusDelivered,
		ActorUserID: uuid.New(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	var stored models.Order
	if err := h.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if stored.Status != enums.OrderStatusPending {
		t.Fatalf("rejected transition must not change status, got %s", stored.Status)
	}
	var count int64
	if err := h.db.Model(&models.OrderEvent{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected transition must not append events, got %d", count)
	}
}

func TestCancelReleasesHeldStock(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	buyer := uuid.New()
	order := seedOrder(t, h.db, buyer, enums.OrderStatusPending)

	cancelled, err := h.svc.Cancel(context.Background(), CancelInput{
		OrderID:     order.ID,
		ActorUserID: buyer,
		ActorRole:   enums.UserRoleCustomer,
		Reason:      "changed my mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled with timestamp, got %+v", cancelled.Status)
	}
	if len(h.releaser.calls) != 1 || h.releaser.calls[0] != order.ID {
		t.Fatalf("expected holds released for order, got %v", h.releaser.calls)
	}

	var events []models.OrderEvent
	if err := h.db.Where("order_id = ?", order.ID).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 || events[0].Description != "changed my mind" {
		t.Fatalf("expected cancel event with reason, got %+v", events)
	}
}

func TestCancelOwnershipAndWindow(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	ctx := context.Background()
	buyer := uuid.New()

	order := seedOrder(t, h.db, buyer, enums.OrderStatusPending)
	_, err := h.svc.Cancel(ctx, CancelInput{
		OrderID:     order.ID,
		ActorUserID: uuid.New(),
		ActorRole:   enums.UserRoleCustomer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for other user, got %v", err)
	}

	shipped := seedOrder(t, h.db, buyer, enums.OrderStatusInTransit)
	_, err = h.svc.Cancel(ctx, CancelInput{
		OrderID:     shipped.ID,
		ActorUserID: buyer,
		ActorRole:   enums.UserRoleCustomer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict after pickup, got %v", err)
	}

	// Admins may cancel orders they do not own, inside the window.
	other := seedOrder(t, h.db, buyer, enums.OrderStatusPaid)
	if _, err := h.svc.Cancel(ctx, CancelInput{
		OrderID:     other.ID,
		ActorUserID: uuid.New(),
		ActorRole:   enums.UserRoleAdmin,
	}); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := seedOrder(t, h.db, buyer, enums.OrderStatusPending)

	if _, err := h.svc.Get(ctx, order.ID, buyer, enums.UserRoleCustomer); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := h.svc.Get(ctx, order.ID, uuid.New(), enums.UserRoleAdmin); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	_, err := h.svc.Get(ctx, order.ID, uuid.New(), enums.UserRoleCustomer)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = h.svc.Get(ctx, uuid.New(), buyer, enums.UserRoleCustomer)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPagesWithCursor(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	for i := 0; i < 3; i++ {
		seedOrder(t, h.db, buyer, enums.OrderStatusPending)
	}
	seedOrder(t, h.db, uuid.New(), enums.OrderStatusPending)

	first, next, err := h.svc.List(ctx, buyer, pagination.Params{Limit: 2}, ListFilters{})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || next == "" {
		t.Fatalf("expected full first page with cursor, got %d %q", len(first), next)
	}

	second, next, err := h.svc.List(ctx, buyer, pagination.Params{Limit: 2, Cursor: next}, ListFilters{})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || next != "" {
		t.Fatalf("expected final page of one, got %d %q", len(second), next)
	}

	status := enums.OrderStatusDelivered
	filtered, _, err := h.svc.List(ctx, buyer, pagination.Params{Limit: 10}, ListFilters{Status: &status})
	if err != nil {
		t.Fatalf("filtered page: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no delivered orders, got %d", len(filtered))
	}

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first, second...) {
		if o.UserID != buyer {
			t.Fatalf("leaked another user's order %s", o.ID)
		}
		if seen[o.ID] {
			t.Fatalf("order %s appeared twice", o.ID)
		}
		seen[o.ID] = true
	}
}
