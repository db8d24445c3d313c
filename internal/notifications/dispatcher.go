package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minalesh/marketplace-backend/pkg/enums"
	"github.com/minalesh/marketplace-backend/pkg/logger"
)

// DefaultSendTimeout bounds a single notification dispatch.
const DefaultSendTimeout = 10 * time.Second

// TrackingEvent is the payload published for each order milestone.
type TrackingEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	UserID     uuid.UUID           `json:"user_id"`
	Stage      enums.TrackingStage `json:"stage"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Sender delivers one tracking event to the outside world.
type Sender interface {
	Send(ctx context.Context, event TrackingEvent) error
}

// Dispatcher fans tracking events out without blocking the order path.
// Delivery is best-effort: failures are logged and dropped, never returned,
// so a broken notification pipe cannot fail or roll back an order operation.
type Dispatcher struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher over the given sender.
func NewDispatcher(sender Sender, logg *logger.Logger, timeout time.Duration) (*Dispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{sender: sender, logg: logg, timeout: timeout, now: time.Now}, nil
}

// Notify dispatches a tracking event on a detached goroutine. The send
// outlives the request context but not the per-send timeout.
func (d *Dispatcher) Notify(ctx context.Context, orderID, userID uuid.UUID, stage enums.TrackingStage) {
	event := TrackingEvent{
		OrderID:    orderID,
		UserID:     userID,
		Stage:      stage,
		OccurredAt: d.now().UTC(),
	}

	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.sender.Send(sendCtx, event); err != nil {
			fields := d.logg.WithFields(sendCtx, map[string]any{
				"order_id": orderID.String(),
				"stage":    stage.String(),
			})
			d.logg.Error(fields, "dispatch tracking notification", err)
		}
	}()
}

// Flush waits for in-flight dispatches, bounded by ctx. Used on shutdown.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
