package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryConsumer finalizes held stock when an order settles.
type InventoryConsumer interface {
	ConsumeByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// CaptureOrderInput settles a pending order. A nil Amount captures the full
// order total; Final tells the gateway no further captures will follow.
type CaptureOrderInput struct {
	OrderID     uuid.UUID
	Amount      *decimal.Decimal
	Final       bool
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// CaptureStatus is the read-only payment projection for polling clients.
type CaptureStatus struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	GatewayIntentID *string             `json:"gateway_intent_id,omitempty"`
	CapturedAmount  *decimal.Decimal    `json:"captured_amount,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
}

// Service finalizes payment on orders created by checkout.
type Service interface {
	// EnsureIntent returns the order's gateway handle, creating one when the
	// checkout-time gateway call failed or was never made.
	EnsureIntent(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*IntentHandle, error)
	Capture(ctx context.Context, input CaptureOrderInput) (*models.Order, error)
	GetCaptureStatus(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*CaptureStatus, error)
}

type service struct {
	repo      orders.Repository
	tx        txRunner
	inventory InventoryConsumer
	gateway   Gateway
	logg      *logger.Logger
}

// NewService builds the capture handler.
func NewService(repo orders.Repository, tx txRunner, inventory InventoryConsumer, gateway Gateway, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory consumer required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory, gateway: gateway, logg: logg}, nil
}

func (s *service) EnsureIntent(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*IntentHandle, error) {
	order, err := s.loadAuthorized(ctx, orderID, actorUserID, actorRole)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status.String()})
	}
	if order.GatewayIntentID != nil {
		return &IntentHandle{IntentID: *order.GatewayIntentID}, nil
	}

	handle, err := s.gateway.CreateIntent(ctx, CreateIntentInput{
		AmountMinor: toMinorUnits(order.TotalAmount),
		Currency:    strings.ToLower(order.Currency.String()),
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if err := s.repo.SetGatewayIntent(ctx, order.ID, handle.IntentID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}
	return handle, nil
}

// Capture settles funds and finalizes inventory. The gateway call happens
// first; a decline leaves the order pending and its holds intact. Once the
// gateway settles, consumption, the paid transition and the audit event
// commit together.
func (s *service) Capture(ctx context.Context, input CaptureOrderInput) (*models.Order, error) {
	order, err := s.loadAuthorized(ctx, input.OrderID, input.ActorUserID, input.ActorRole)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting capture").
			WithDetails(map[string]any{"status": order.Status.String()})
	}
	if order.GatewayIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order has no payment intent")
	}

	captureInput := CaptureInput{IntentID: *order.GatewayIntentID, Final: input.Final}
	if input.Amount != nil {
		if input.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture amount must be positive")
		}
		if input.Amount.GreaterThan(order.TotalAmount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture amount exceeds order total")
		}
		minor := toMinorUnits(*input.Amount)
		captureInput.AmountMinor = &minor
	}

	result, err := s.gateway.Capture(ctx, captureInput)
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "payment capture declined", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway capture")
	}

	captured := decimal.New(result.CapturedMinor, -2)
	now := time.Now().UTC()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		consumed, err := s.inventory.ConsumeByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		if err := repo.SetPaymentStatus(ctx, order.ID, enums.PaymentStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if err := repo.SetCapturedAmount(ctx, order.ID, captured.StringFixed(2)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record captured amount")
		}

		event := &models.OrderEvent{
			ID:          uuid.New(),
			OrderID:     order.ID,
			EventType:   enums.OrderEventTypePaymentUpdate,
			Status:      enums.OrderStatusPaid,
			Description: "payment captured",
			Metadata: map[string]any{
				"captured_amount":       captured.StringFixed(2),
				"gateway_intent_id":     *order.GatewayIntentID,
				"consumed_reservations": consumed,
				"final_capture":         input.Final,
			},
		}
		if input.ActorUserID != uuid.Nil {
			event.ActorUserID = &input.ActorUserID
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusPaid
	order.PaymentStatus = enums.PaymentStatusPaid
	order.CapturedAmount = &captured
	order.PaidAt = &now
	return order, nil
}

func (s *service) GetCaptureStatus(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*CaptureStatus, error) {
	order, err := s.loadAuthorized(ctx, orderID, actorUserID, actorRole)
	if err != nil {
		return nil, err
	}
	return &CaptureStatus{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		GatewayIntentID: order.GatewayIntentID,
		CapturedAmount:  order.CapturedAmount,
		PaidAt:          order.PaidAt,
	}, nil
}

func (s *service) loadAuthorized(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if actorRole != enums.UserRoleAdmin && order.UserID != actorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

// toMinorUnits converts a two-decimal amount to integer minor units.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
