package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryReleaser returns held stock when an order is cancelled.
type InventoryReleaser interface {
	ReleaseByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// TrackingNotifier announces buyer-facing order milestones. Implementations
// are fire-and-forget: they never block the caller and never return errors.
type TrackingNotifier interface {
	Notify(ctx context.Context, orderID, userID uuid.UUID, stage enums.TrackingStage)
}

// Service drives the order lifecycle. Every status write in the system goes
// through UpdateStatus or Cancel; nothing else touches the column.
type Service interface {
	Get(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, string, error)
	Events(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) ([]models.OrderEvent, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
}

// UpdateStatusInput carries one transition request.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	NextStatus  enums.OrderStatus
	ActorUserID uuid.UUID
	Note        string
}

// CancelInput carries a buyer or admin cancellation.
type CancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	Reason      string
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory InventoryReleaser
	notifier  TrackingNotifier
	logg      *logger.Logger
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, inventory InventoryReleaser, notifier TrackingNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("tracking notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory, notifier: notifier, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) (*models.Order, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderAccess(order, actorUserID, actorRole); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orders, next, err := s.repo.ListByUser(ctx, userID, params, filters)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, next, nil
}

func (s *service) Events(ctx context.Context, orderID, actorUserID uuid.UUID, actorRole enums.UserRole) ([]models.OrderEvent, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderAccess(order, actorUserID, actorRole); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order events")
	}
	return events, nil
}

// UpdateStatus applies one validated transition. The status write, its entry
// timestamp and the audit event commit together; the tracking notification
// fires after commit and cannot fail the transition.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.NextStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": input.NextStatus.String()})
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, input.NextStatus); err != nil {
			return err
		}

		now := nowUTC()
		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, input.NextStatus, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}

		if err := repo.AppendEvent(ctx, statusEvent(order, input.NextStatus, input.ActorUserID, input.Note)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
		}

		prior := order.Status
		order.Status = input.NextStatus
		applyStatusTimestamp(order, input.NextStatus, now)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"from":     prior.String(),
			"to":       input.NextStatus.String(),
		}), "order status updated")
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stage, ok := NotificationStage(updated.Status); ok {
		s.notifier.Notify(ctx, updated.ID, updated.UserID, stage)
	}
	return updated, nil
}

// Cancel moves an order to cancelled and releases its held stock in the same
// transaction. Buyers may cancel their own orders, admins any order; both
// only while the transition table still allows cancellation.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeOrderAccess(order, input.ActorUserID, input.ActorRole); err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}

		now := nowUTC()
		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}

		released, err := s.inventory.ReleaseByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		event := statusEvent(order, enums.OrderStatusCancelled, input.ActorUserID, input.Reason)
		event.Metadata["released_reservations"] = released
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancel event")
		}

		order.Status = enums.OrderStatusCancelled
		applyStatusTimestamp(order, enums.OrderStatusCancelled, now)
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func authorizeOrderAccess(order *models.Order, actorUserID uuid.UUID, actorRole enums.UserRole) error {
	if actorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actorRole == enums.UserRoleAdmin {
		return nil
	}
	if order.UserID != actorUserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return nil
}

func statusEvent(order *models.Order, next enums.OrderStatus, actorUserID uuid.UUID, note string) *models.OrderEvent {
	description := note
	if description == "" {
		description = fmt.Sprintf("status changed from %s to %s", order.Status, next)
	}
	event := &models.OrderEvent{
		ID:          uuid.New(),
		OrderID:     order.ID,
		EventType:   enums.OrderEventTypeStatusChanged,
		Status:      next,
		Description: description,
		Metadata: map[string]any{
			"from": order.Status.String(),
			"to":   next.String(),
		},
	}
	if actorUserID != uuid.Nil {
		event.ActorUserID = &actorUserID
	}
	return event
}
