package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog read-side consumed by checkout. Product CRUD lives
// outside this service; checkout only snapshots price and identity from here.
type Product struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	VendorID  uuid.UUID        `gorm:"column:vendor_id;type:uuid;not null"`
	SKU       string           `gorm:"column:sku;not null;uniqueIndex"`
	Name      string           `gorm:"column:name;not null"`
	Price     decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	SalePrice *decimal.Decimal `gorm:"column:sale_price;type:numeric(12,2)"`
	Active    bool             `gorm:"column:active;not null;default:true"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant is an optional sellable variation of a product.
type ProductVariant struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	SKU       string           `gorm:"column:sku;not null;uniqueIndex"`
	Name      string           `gorm:"column:name;not null"`
	Price     *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
