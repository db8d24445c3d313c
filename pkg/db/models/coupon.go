package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/pkg/enums"
)

// Coupon is a read-only rate table entry consumed by the pricing calculator.
type Coupon struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code            string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType    enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue   decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinimumPurchase decimal.Decimal    `gorm:"column:minimum_purchase;type:numeric(12,2);not null;default:0"`
	MaximumDiscount *decimal.Decimal   `gorm:"column:maximum_discount;type:numeric(12,2)"`
	StartsAt        time.Time          `gorm:"column:starts_at;not null"`
	EndsAt          time.Time          `gorm:"column:ends_at;not null"`
	Status          enums.CouponStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
