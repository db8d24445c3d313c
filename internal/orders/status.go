package orders

import (
	"time"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// transitions is the one-step reachability table. Forward progression only,
// plus cancellation from early states and refund once money has moved.
// delivered, cancelled and refunded are terminal.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusPacked,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPacked: {
		enums.OrderStatusPickedUp,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPickedUp: {
		enums.OrderStatusInTransit,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusInTransit: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusFulfilled,
		enums.OrderStatusShipped,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusFulfilled: {
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusRefunded:  {},
}

// ValidateTransition checks that requested is reachable from current in one
// step. The returned conflict names both states for the caller.
func ValidateTransition(current, requested enums.OrderStatus) error {
	if !current.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown current status").
			WithDetails(map[string]any{"status": current.String()})
	}
	if !requested.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown requested status").
			WithDetails(map[string]any{"status": requested.String()})
	}
	for _, next := range transitions[current] {
		if next == requested {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid status transition").
		WithDetails(map[string]any{"from": current.String(), "to": requested.String()})
}

// IsTerminal reports whether a status has no outbound transitions.
func IsTerminal(status enums.OrderStatus) bool {
	return len(transitions[status]) == 0 && status.IsValid()
}

// CanCancel reports whether cancellation is reachable from the status.
func CanCancel(status enums.OrderStatus) bool {
	return ValidateTransition(status, enums.OrderStatusCancelled) == nil
}

// statusTimestampColumn maps each status to the column stamped on entry.
// Orders entering a status twice is impossible, so each stamps at most once.
var statusTimestampColumn = map[enums.OrderStatus]string{
	enums.OrderStatusPaid:           "paid_at",
	enums.OrderStatusConfirmed:      "confirmed_at",
	enums.OrderStatusProcessing:     "processing_at",
	enums.OrderStatusPacked:         "packed_at",
	enums.OrderStatusPickedUp:       "picked_up_at",
	enums.OrderStatusInTransit:      "in_transit_at",
	enums.OrderStatusOutForDelivery: "out_for_delivery_at",
	enums.OrderStatusFulfilled:      "fulfilled_at",
	enums.OrderStatusShipped:        "shipped_at",
	enums.OrderStatusDelivered:      "delivered_at",
	enums.OrderStatusCancelled:      "cancelled_at",
	enums.OrderStatusRefunded:       "refunded_at",
}

// applyStatusTimestamp mirrors the column write onto the in-memory order.
func applyStatusTimestamp(order *models.Order, status enums.OrderStatus, at time.Time) {
	switch status {
	case enums.OrderStatusPaid:
		order.PaidAt = &at
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &at
	case enums.OrderStatusProcessing:
		order.ProcessingAt = &at
	case enums.OrderStatusPacked:
		order.PackedAt = &at
	case enums.OrderStatusPickedUp:
		order.PickedUpAt = &at
	case enums.OrderStatusInTransit:
		order.InTransitAt = &at
	case enums.OrderStatusOutForDelivery:
		order.OutForDeliveryAt = &at
	case enums.OrderStatusFulfilled:
		order.FulfilledAt = &at
	case enums.OrderStatusShipped:
		order.ShippedAt = &at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	case enums.OrderStatusRefunded:
		order.RefundedAt = &at
	}
}

// notificationStages maps statuses to buyer-facing tracking milestones.
// Statuses without a stage (paid, processing, fulfilled, shipped, cancelled,
// refunded) change state silently; their surfaces notify through other means.
var notificationStages = map[enums.OrderStatus]enums.TrackingStage{
	enums.OrderStatusPending:        enums.TrackingStagePending,
	enums.OrderStatusConfirmed:      enums.TrackingStageConfirmed,
	enums.OrderStatusPacked:         enums.TrackingStagePacked,
	enums.OrderStatusPickedUp:       enums.TrackingStagePickedUp,
	enums.OrderStatusInTransit:      enums.TrackingStageInTransit,
	enums.OrderStatusOutForDelivery: enums.TrackingStageOutForDelivery,
	enums.OrderStatusDelivered:      enums.TrackingStageDelivered,
}

// NotificationStage returns the tracking stage announced when an order enters
// the status, if any.
func NotificationStage(status enums.OrderStatus) (enums.TrackingStage, bool) {
	stage, ok := notificationStages[status]
	return stage, ok
}
