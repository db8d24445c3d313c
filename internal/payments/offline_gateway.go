package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// offlineGateway authorizes and captures everything locally. It stands in for
// the real gateway in environments without Stripe credentials so checkout and
// capture flows stay exercisable end to end.
type offlineGateway struct {
	mu      sync.Mutex
	intents map[string]int64
}

// NewOfflineGateway builds a gateway that never talks to an external service.
func NewOfflineGateway() Gateway {
	return &offlineGateway{intents: make(map[string]int64)}
}

func (g *offlineGateway) CreateIntent(_ context.Context, input CreateIntentInput) (*IntentHandle, error) {
	id := fmt.Sprintf("dev_%s", uuid.NewString())
	g.mu.Lock()
	g.intents[id] = input.AmountMinor
	g.mu.Unlock()
	return &IntentHandle{
		IntentID:     id,
		ClientSecret: id + "_secret",
	}, nil
}

func (g *offlineGateway) Capture(_ context.Context, input CaptureInput) (*CaptureResult, error) {
	g.mu.Lock()
	authorized, ok := g.intents[input.IntentID]
	g.mu.Unlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment intent")
	}
	captured := authorized
	if input.AmountMinor != nil {
		captured = *input.AmountMinor
	}
	return &CaptureResult{CapturedMinor: captured, Status: "succeeded"}, nil
}
