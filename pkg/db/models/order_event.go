package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minalesh/marketplace-backend/pkg/enums"
	"github.com/minalesh/marketplace-backend/pkg/types"
)

// OrderEvent is an append-only audit entry. Every status transition writes at
// least one; additional entries carry notes and payment updates.
type OrderEvent struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	EventType   enums.OrderEventType `gorm:"column:event_type;type:text;not null"`
	Status      enums.OrderStatus    `gorm:"column:status;type:text;not null"`
	Description string               `gorm:"column:description;not null"`
	Metadata    types.JSONMap        `gorm:"column:metadata;type:jsonb;serializer:json"`
	ActorUserID *uuid.UUID           `gorm:"column:actor_user_id;type:uuid"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}
