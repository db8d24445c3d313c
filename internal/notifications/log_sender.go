package notifications

import (
	"context"
	"errors"

	"github.com/minalesh/marketplace-backend/pkg/logger"
)

// LogSender writes tracking events to the log instead of a broker. Used in
// environments without pub/sub configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) (*LogSender, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &LogSender{logg: logg}, nil
}

func (s *LogSender) Send(ctx context.Context, event TrackingEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": event.OrderID.String(),
		"user_id":  event.UserID.String(),
		"stage":    string(event.Stage),
	})
	s.logg.Info(ctx, "order tracking event")
	return nil
}
