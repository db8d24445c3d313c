package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minalesh/marketplace-backend/pkg/enums"
)

// InventoryReservation is a short-lived hold on stock taken during checkout.
// A hold moves to released or consumed exactly once, never both.
type InventoryReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID  *uuid.UUID              `gorm:"column:variant_id;type:uuid"`
	Quantity   int                     `gorm:"column:quantity;not null"`
	UserID     uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'held';index"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	ExpiresAt  time.Time               `gorm:"column:expires_at;not null;index"`
	ReleasedAt *time.Time              `gorm:"column:released_at"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
