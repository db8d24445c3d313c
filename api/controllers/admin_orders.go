package controllers

import (
	"context"
	"net/http"

	"github.com/minalesh/marketplace-backend/api/responses"
	"github.com/minalesh/marketplace-backend/api/validators"
	internalorders "github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
)

// ReservationSweeper releases expired inventory holds on demand.
type ReservationSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// UpdateOrderStatus advances an order along the fulfillment state machine.
func UpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, _, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}
		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:     orderID,
			NextStatus:  status,
			ActorUserID: userID,
			Note:        payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// SweepReservations triggers an immediate expired-hold sweep. The cron worker
// does this on a cadence; this endpoint exists for operational recovery.
func SweepReservations(sweeper ReservationSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation store unavailable"))
			return
		}
		released, err := sweeper.SweepExpired(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"released": released})
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"omitempty,max=500"`
}
