package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/api/responses"
	"github.com/minalesh/marketplace-backend/api/validators"
	"github.com/minalesh/marketplace-backend/internal/payments"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
)

// EnsurePaymentIntent returns the order's gateway handle, creating one when
// checkout could not.
func EnsurePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		handle, err := svc.EnsureIntent(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentIntentResponse{
			IntentID:     handle.IntentID,
			ClientSecret: handle.ClientSecret,
		})
	}
}

// CaptureOrder settles an authorized payment and marks the order paid.
func CaptureOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload captureRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		var amount *decimal.Decimal
		if payload.Amount != "" {
			parsed, err := decimal.NewFromString(payload.Amount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid capture amount"))
				return
			}
			amount = &parsed
		}
		order, err := svc.Capture(r.Context(), payments.CaptureOrderInput{
			OrderID:     orderID,
			Amount:      amount,
			Final:       payload.Final,
			ActorUserID: userID,
			ActorRole:   role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CaptureStatus reports the order's payment projection for polling clients.
func CaptureStatus(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDFromRequest(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.GetCaptureStatus(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

type captureRequest struct {
	Amount string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Final  bool   `json:"final,omitempty"`
}

type paymentIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}
