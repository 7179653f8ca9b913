// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/inventory-portal/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	msg := shared.UserSafeMessage(err)
	switch {
	case errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", msg)
	case errors.Is(err, shared.ErrEmailInUse):
		Problem(w, http.StatusConflict, "Duplicate", msg)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", msg)
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrSelfDeleteForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", msg)
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrRoleMismatch):
		Problem(w, http.StatusUnauthorized, "Unauthorized", msg)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
