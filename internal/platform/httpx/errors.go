package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps the engine's error taxonomy to RFC7807 responses.
// Partial failures must surface the failing record and step; they are never
// flattened into a generic message.
func RespondError(w http.ResponseWriter, err error) {
	var pf *shared.PartialFailureError
	switch {
	case errors.As(err, &pf):
		// 500 with the exact resume point for the operator.
		Problem(w, http.StatusInternalServerError, "Partial Failure", pf.Error())
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.IsState(err):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrDocumentBusy):
		Problem(w, http.StatusConflict, "Busy", err.Error())
	case errors.Is(err, document.ErrStatusConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
