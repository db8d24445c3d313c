package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/pkg/enums"
	"github.com/minalesh/marketplace-backend/pkg/types"
)

// Order is the buyer-facing order aggregate. Status is only ever written by
// the lifecycle service through the transition table; orders are never hard
// deleted (cancellation and refunds are statuses).
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	OrderNumber   string              `gorm:"column:order_number;not null;uniqueIndex"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending';index"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	Subtotal       decimal.Decimal  `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount decimal.Decimal  `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	ShippingAmount decimal.Decimal  `gorm:"column:shipping_amount;type:numeric(12,2);not null;default:0"`
	TaxAmount      decimal.Decimal  `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount    decimal.Decimal  `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency       enums.Currency   `gorm:"column:currency;type:text;not null;default:'ETB'"`
	CapturedAmount *decimal.Decimal `gorm:"column:captured_amount;type:numeric(12,2)"`

	ShippingAddress  *types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress   *types.Address `gorm:"column:billing_address;type:jsonb;serializer:json"`
	CouponID         *uuid.UUID     `gorm:"column:coupon_id;type:uuid"`
	ShippingMethodID *uuid.UUID     `gorm:"column:shipping_method_id;type:uuid"`
	GatewayIntentID  *string        `gorm:"column:gateway_intent_id"`

	PaidAt           *time.Time `gorm:"column:paid_at"`
	ConfirmedAt      *time.Time `gorm:"column:confirmed_at"`
	ProcessingAt     *time.Time `gorm:"column:processing_at"`
	PackedAt         *time.Time `gorm:"column:packed_at"`
	PickedUpAt       *time.Time `gorm:"column:picked_up_at"`
	InTransitAt      *time.Time `gorm:"column:in_transit_at"`
	OutForDeliveryAt *time.Time `gorm:"column:out_for_delivery_at"`
	FulfilledAt      *time.Time `gorm:"column:fulfilled_at"`
	ShippedAt        *time.Time `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time `gorm:"column:delivered_at"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at"`
	RefundedAt       *time.Time `gorm:"column:refunded_at"`

	Items        []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Events       []OrderEvent           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Reservations []InventoryReservation `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
