// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Domain packages wrap the shared sentinels, so matching on those covers
// their package-local errors too.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, erp.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrStaleWrite):
		Problem(w, http.StatusConflict, "Stale Write", err.Error())
	case errors.Is(err, shared.ErrGuardViolation):
		Problem(w, http.StatusUnprocessableEntity, "Transition Not Allowed", err.Error())
	case errors.Is(err, shared.ErrValidationPartial):
		// Validation did not finish; the caller should revalidate.
		Problem(w, http.StatusAccepted, "Validation Incomplete", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, erp.ErrRejected):
		Problem(w, http.StatusUnprocessableEntity, "Rejected By ERP", err.Error())
	case errors.Is(err, erp.ErrAmbiguous), errors.Is(err, erp.ErrUnavailable):
		Problem(w, http.StatusBadGateway, "ERP Unreachable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
