package payments

import "context"

// CreateIntentInput asks the processor for a new manual-capture intent.
type CreateIntentInput struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// IntentHandle is what a browser or app needs to drive payment collection.
type IntentHandle struct {
	IntentID     string
	ClientSecret string
}

// CaptureInput settles funds on a previously authorized intent. A nil
// AmountMinor captures the full authorized amount.
type CaptureInput struct {
	IntentID    string
	AmountMinor *int64
	Final       bool
}

// CaptureResult reports what the processor actually settled.
type CaptureResult struct {
	CapturedMinor int64
	Status        string
}

// Gateway abstracts the external payment processor. Calls are fallible and
// external; a gateway failure never invalidates the order record itself.
type Gateway interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*IntentHandle, error)
	Capture(ctx context.Context, input CaptureInput) (*CaptureResult, error)
}
