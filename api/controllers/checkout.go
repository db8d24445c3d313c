package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/minalesh/marketplace-backend/api/responses"
	"github.com/minalesh/marketplace-backend/api/validators"
	checkoutsvc "github.com/minalesh/marketplace-backend/internal/checkout"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/types"
)

// CreateCheckoutIntent reserves stock for the submitted cart, creates a
// pending order, and returns the payment handle when the gateway produced one.
func CreateCheckoutIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, _, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]checkoutsvc.CartItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.CartItemInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}
		result, err := svc.CreateIntent(r.Context(), checkoutsvc.CreateIntentInput{
			UserID:          userID,
			Items:           items,
			CouponCode:      payload.CouponCode,
			ShippingMethod:  payload.ShippingMethod,
			ShippingZone:    payload.ShippingZone,
			Country:         payload.Country,
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservationIDs := make([]uuid.UUID, len(result.ReservationIDs))
		copy(reservationIDs, result.ReservationIDs)
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutIntentResponse{
			Order:          newOrderResponse(result.Order),
			ReservationIDs: reservationIDs,
			IntentID:       result.IntentID,
			ClientSecret:   result.ClientSecret,
			ExpiresAt:      result.ExpiresAt,
		})
	}
}

type checkoutItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

type checkoutIntentRequest struct {
	Items           []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	CouponCode      string                `json:"coupon_code,omitempty"`
	ShippingMethod  string                `json:"shipping_method,omitempty"`
	ShippingZone    string                `json:"shipping_zone,omitempty"`
	Country         string                `json:"country,omitempty"`
	ShippingAddress *types.Address        `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address        `json:"billing_address,omitempty"`
}

type checkoutIntentResponse struct {
	Order          orderResponse `json:"order"`
	ReservationIDs []uuid.UUID   `json:"reservation_ids"`
	IntentID       string        `json:"intent_id,omitempty"`
	ClientSecret   string        `json:"client_secret,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
}
