// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrMissingConfiguration):
		Problem(w, http.StatusUnprocessableEntity, "Missing Configuration", err.Error())
	case errors.Is(err, shared.ErrFiscalNumberingMismatch):
		Problem(w, http.StatusConflict, "Fiscal Numbering Mismatch", err.Error())
	case errors.Is(err, shared.ErrFiscalRejected):
		Problem(w, http.StatusUnprocessableEntity, "Fiscal Rejection", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
