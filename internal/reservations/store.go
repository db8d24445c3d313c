package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// DefaultHoldWindow is how long a hold blocks stock before it expires.
const DefaultHoldWindow = 15 * time.Minute

// ReserveInput describes one hold request.
type ReserveInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	UserID    uuid.UUID
}

// Store owns every stock-affecting write. The inventory row carries a
// reserved_qty counter mirroring the sum of live holds, so availability is a
// single-row check (stock_qty - reserved_qty) that stays correct under
// concurrent writers: a guard that summed reservation rows would not see a
// concurrent reserver's committed insert under read committed. Expired holds
// are reaped lazily by the next Reserve on the item and by the sweep job.
type Store struct {
	db         *gorm.DB
	holdWindow time.Duration
	now        func() time.Time
}

// NewStore builds a reservation store bound to the provided DB.
func NewStore(db *gorm.DB, holdWindow time.Duration) *Store {
	if holdWindow <= 0 {
		holdWindow = DefaultHoldWindow
	}
	return &Store{db: db, holdWindow: holdWindow, now: time.Now}
}

// WithTx rebinds the store to an open transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	if tx == nil {
		return s
	}
	return &Store{db: tx, holdWindow: s.holdWindow, now: s.now}
}

// WithClock overrides the time source, used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now == nil {
		return s
	}
	return &Store{db: s.db, holdWindow: s.holdWindow, now: now}
}

// HoldWindow reports the configured hold duration.
func (s *Store) HoldWindow() time.Duration {
	return s.holdWindow
}

// Reserve atomically checks availability and creates a hold. The check and
// the counter bump are one guarded UPDATE on the inventory row; the row lock
// it takes serializes concurrent reservers on the same item, so two reserves
// racing for the last unit cannot both pass. Expired holds on the item are
// released first, inside the same transaction, so a lapsed hold never blocks
// a new reserve even before the sweep job runs.
func (s *Store) Reserve(ctx context.Context, input ReserveInput) (*models.InventoryReservation, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	now := s.now().UTC()
	reservation := &models.InventoryReservation{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
		UserID:    input.UserID,
		Status:    enums.ReservationStatusHeld,
		ExpiresAt: now.Add(s.holdWindow),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.sweepItemExpired(tx, input.ProductID, input.VariantID, now); err != nil {
			return err
		}

		guard := itemQuery(tx, input.ProductID, input.VariantID).
			Where("stock_qty - reserved_qty >= ?", input.Quantity).
			Updates(map[string]any{
				"reserved_qty": gorm.Expr("reserved_qty + ?", input.Quantity),
				"version":      gorm.Expr("version + 1"),
				"updated_at":   now,
			})
		if guard.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, guard.Error, "check availability")
		}
		if guard.RowsAffected == 0 {
			var item models.InventoryItem
			if err := itemQuery(tx, input.ProductID, input.VariantID).First(&item).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
			}
			available := item.StockQty - item.ReservedQty
			if available < 0 {
				available = 0
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"available": available, "requested": input.Quantity})
		}
		if err := tx.Create(reservation).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Release returns held stock. Releasing a hold that already moved to
// released or consumed is a no-op, so compensation paths can call it blindly.
func (s *Store) Release(ctx context.Context, reservationID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}

	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hold models.InventoryReservation
		if err := tx.First(&hold, "id = ?", reservationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}
		if hold.Status != enums.ReservationStatusHeld {
			return nil
		}
		_, err := s.releaseHold(tx, hold, now)
		return err
	})
}

// Consume finalizes a single hold: the reservation moves to consumed, gets
// linked to the order, and the on-hand stock drops by the held quantity.
// A hold that is not currently held fails with a state conflict.
func (s *Store) Consume(ctx context.Context, reservationID, orderID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hold models.InventoryReservation
		if err := tx.First(&hold, "id = ?", reservationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}
		if hold.Status != enums.ReservationStatusHeld {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not held")
		}
		return s.consumeHold(tx, hold, orderID)
	})
}

// ReleaseByOrder releases every hold still attached to an order, returning
// how many were released.
func (s *Store) ReleaseByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	now := s.now().UTC()
	var released int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holds []models.InventoryReservation
		if err := tx.
			Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusHeld).
			Find(&holds).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order reservations")
		}
		for _, hold := range holds {
			ok, err := s.releaseHold(tx, hold, now)
			if err != nil {
				return err
			}
			if ok {
				released++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// LinkOrder attaches freshly created holds to their order.
func (s *Store) LinkOrder(ctx context.Context, reservationIDs []uuid.UUID, orderID uuid.UUID) error {
	if len(reservationIDs) == 0 {
		return nil
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("id IN ? AND status = ?", reservationIDs, enums.ReservationStatusHeld).
		Update("order_id", orderID)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "link reservations to order")
	}
	if result.RowsAffected != int64(len(reservationIDs)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "some reservations are no longer held")
	}
	return nil
}

// ConsumeByOrder finalizes every held reservation on a paid order: the hold
// becomes consumed and the on-hand stock drops by the held quantity, so net
// availability is unchanged. A hold that expired but was not yet swept still
// consumes; the sweep only reaps holds nobody paid for.
func (s *Store) ConsumeByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var consumed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holds []models.InventoryReservation
		if err := tx.
			Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusHeld).
			Find(&holds).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order reservations")
		}

		for _, hold := range holds {
			if err := s.consumeHold(tx, hold, orderID); err != nil {
				return err
			}
		}
		consumed = int64(len(holds))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return consumed, nil
}

// SweepExpired releases every hold past its expiry, returning how many rows
// were reaped. Safe to run concurrently with reserves; the guarded per-hold
// update makes each hold transition at most once.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var swept int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holds []models.InventoryReservation
		if err := tx.
			Where("status = ? AND expires_at <= ?", enums.ReservationStatusHeld, now).
			Find(&holds).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expired reservations")
		}
		for _, hold := range holds {
			ok, err := s.releaseHold(tx, hold, now)
			if err != nil {
				return err
			}
			if ok {
				swept++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// sweepItemExpired reaps lapsed holds for one item so they stop counting
// against reserved_qty before the availability guard runs.
func (s *Store) sweepItemExpired(tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, now time.Time) error {
	q := tx.Where("product_id = ? AND status = ? AND expires_at <= ?", productID, enums.ReservationStatusHeld, now)
	if variantID == nil {
		q = q.Where("variant_id IS NULL")
	} else {
		q = q.Where("variant_id = ?", *variantID)
	}
	var expired []models.InventoryReservation
	if err := q.Find(&expired).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expired reservations")
	}
	for _, hold := range expired {
		if _, err := s.releaseHold(tx, hold, now); err != nil {
			return err
		}
	}
	return nil
}

// releaseHold moves one hold to released and returns its quantity to the
// item counter. The status guard makes the transition happen at most once
// even when a sweep and a reserve race for the same hold, so the counter is
// decremented exactly once per hold.
func (s *Store) releaseHold(tx *gorm.DB, hold models.InventoryReservation, now time.Time) (bool, error) {
	mark := tx.Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", hold.ID, enums.ReservationStatusHeld).
		Updates(map[string]any{
			"status":      enums.ReservationStatusReleased,
			"released_at": now,
			"updated_at":  now,
		})
	if mark.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, mark.Error, "release reservation")
	}
	if mark.RowsAffected == 0 {
		return false, nil
	}

	item := itemQuery(tx, hold.ProductID, hold.VariantID).
		Where("reserved_qty >= ?", hold.Quantity).
		Updates(map[string]any{
			"reserved_qty": gorm.Expr("reserved_qty - ?", hold.Quantity),
			"updated_at":   now,
		})
	if item.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, item.Error, "return held stock")
	}
	if item.RowsAffected == 0 {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "reservation counter out of sync")
	}
	return true, nil
}

// consumeHold decrements on-hand stock and the held counter by the hold's
// quantity and marks the hold consumed, linking it to the order. The stock
// guard catches a ledger that drifted below the reserved amount.
func (s *Store) consumeHold(tx *gorm.DB, hold models.InventoryReservation, orderID uuid.UUID) error {
	now := s.now().UTC()
	stock := itemQuery(tx, hold.ProductID, hold.VariantID).
		Where("stock_qty >= ? AND reserved_qty >= ?", hold.Quantity, hold.Quantity).
		Updates(map[string]any{
			"stock_qty":    gorm.Expr("stock_qty - ?", hold.Quantity),
			"reserved_qty": gorm.Expr("reserved_qty - ?", hold.Quantity),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   now,
		})
	if stock.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, stock.Error, "decrement stock")
	}
	if stock.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "stock ledger out of sync with reservation")
	}

	mark := tx.Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", hold.ID, enums.ReservationStatusHeld).
		Updates(map[string]any{
			"status":     enums.ReservationStatusConsumed,
			"order_id":   orderID,
			"updated_at": now,
		})
	if mark.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, mark.Error, "consume reservation")
	}
	if mark.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation changed during consume")
	}
	return nil
}

func itemQuery(tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) *gorm.DB {
	q := tx.Model(&models.InventoryItem{}).Where("product_id = ?", productID)
	if variantID == nil {
		return q.Where("variant_id IS NULL")
	}
	return q.Where("variant_id = ?", *variantID)
}
