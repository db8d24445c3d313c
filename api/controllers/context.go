package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/minalesh/marketplace-backend/api/middleware"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// actorFromRequest resolves the authenticated caller injected by the auth
// middleware.
func actorFromRequest(r *http.Request) (uuid.UUID, enums.UserRole, error) {
	raw := strings.TrimSpace(middleware.UserIDFromContext(r.Context()))
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	role := enums.UserRole(middleware.RoleFromContext(r.Context()))
	return userID, role, nil
}

// orderIDFromRequest parses the orderId path parameter.
func orderIDFromRequest(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
