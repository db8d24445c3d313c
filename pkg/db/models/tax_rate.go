package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxRate is the per-country rate table entry. The highest-priority active
// row for the destination country wins.
type TaxRate struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Country   string          `gorm:"column:country;not null;index"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(6,4);not null"`
	Priority  int             `gorm:"column:priority;not null;default:0"`
	Active    bool            `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
