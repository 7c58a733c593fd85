package web

import (
	"encoding/json"
	"net/http"

	"github.com/hpungsan/trove/internal/errors"
)

// renderJSON writes data as a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes err in the {error:{code,message,status,details}} shape.
// INTERNAL errors carry a generic message and no details.
func renderError(w http.ResponseWriter, err error) {
	te, ok := errors.As(err)
	if !ok {
		te = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    string(te.Code),
		"message": err.Error(),
		"status":  te.Status,
	}
	if te.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if te.Details != nil {
		errorObj["details"] = te.Details
	}

	renderJSON(w, te.Status, map[string]any{"error": errorObj})
}
