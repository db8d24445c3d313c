package enums

import "fmt"

// TrackingStage names the buyer-facing notification milestones of an order.
type TrackingStage string

const (
	TrackingStagePending        TrackingStage = "pending"
	TrackingStageConfirmed      TrackingStage = "confirmed"
	TrackingStagePacked         TrackingStage = "packed"
	TrackingStagePickedUp       TrackingStage = "picked_up"
	TrackingStageInTransit      TrackingStage = "in_transit"
	TrackingStageOutForDelivery TrackingStage = "out_for_delivery"
	TrackingStageDelivered      TrackingStage = "delivered"
)

var validTrackingStages = []TrackingStage{
	TrackingStagePending,
	TrackingStageConfirmed,
	TrackingStagePacked,
	TrackingStagePickedUp,
	TrackingStageInTransit,
	TrackingStageOutForDelivery,
	TrackingStageDelivered,
}

// String implements fmt.Stringer.
func (s TrackingStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TrackingStage.
func (s TrackingStage) IsValid() bool {
	for _, candidate := range validTrackingStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTrackingStage converts raw input into a TrackingStage.
func ParseTrackingStage(value string) (TrackingStage, error) {
	for _, candidate := range validTrackingStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tracking stage %q", value)
}
