package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingRate is the per-method/zone rate table entry.
type ShippingRate struct {
	ID                    uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Method                string           `gorm:"column:method;not null;uniqueIndex:ux_shipping_method_zone"`
	Zone                  string           `gorm:"column:zone;not null;uniqueIndex:ux_shipping_method_zone"`
	Amount                decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null"`
	FreeShippingThreshold *decimal.Decimal `gorm:"column:free_shipping_threshold;type:numeric(12,2)"`
	Active                bool             `gorm:"column:active;not null;default:true"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
