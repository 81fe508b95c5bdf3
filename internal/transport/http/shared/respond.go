// Package shared holds the JSON response helpers used by every handler
// package so error envelopes stay consistent across the API.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "caseflow/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the JSON error envelope. The
// message of internal errors is not leaked to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "internal server error"
	if status < http.StatusInternalServerError {
		message = err.Error()
		var de *dErrors.Error
		if errors.As(err, &de) {
			message = de.Message
		}
	}
	WriteJSON(w, status, map[string]string{
		"error":   string(code),
		"message": message,
	})
}
