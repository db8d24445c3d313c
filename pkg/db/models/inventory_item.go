package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem owns the stock counters per product/variant. All
// stock-affecting writes go through the reservation store; nothing else may
// touch these rows. ReservedQty mirrors the sum of live holds so the
// check-and-create is a single guarded conditional update on this row alone;
// a guard that read other rows would not see a concurrent reserver's commit
// under read committed. Version is bumped by every successful reserve.
type InventoryItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_product_variant"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid;uniqueIndex:ux_inventory_product_variant"`
	StockQty    int        `gorm:"column:stock_qty;not null;default:0"`
	ReservedQty int        `gorm:"column:reserved_qty;not null;default:0"`
	Version     int64      `gorm:"column:version;not null;default:0"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
