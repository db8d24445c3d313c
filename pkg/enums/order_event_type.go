package enums

import "fmt"

// OrderEventType categorizes entries on an order's audit trail.
type OrderEventType string

const (
	OrderEventTypeCreated       OrderEventType = "created"
	OrderEventTypeStatusChanged OrderEventType = "status_changed"
	OrderEventTypePaymentUpdate OrderEventType = "payment_update"
	OrderEventTypeNote          OrderEventType = "note"
)

var validOrderEventTypes = []OrderEventType{
	OrderEventTypeCreated,
	OrderEventTypeStatusChanged,
	OrderEventTypePaymentUpdate,
	OrderEventTypeNote,
}

// String implements fmt.Stringer.
func (o OrderEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderEventType.
func (o OrderEventType) IsValid() bool {
	for _, candidate := range validOrderEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderEventType converts raw input into an OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	for _, candidate := range validOrderEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event type %q", value)
}
