package httputil

import (
	"encoding/json"
	"net/http"
)

const ContentTypeJSON = "application/json"

// JSON writes data with the given status code. data is encoded before the
// header is sent, so an encoding failure becomes a 500 rather than a
// truncated success.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	Blob(w, statusCode, append(body, '\n'), ContentTypeJSON)
}

// Blob writes a pre-encoded body.
func Blob(w http.ResponseWriter, statusCode int, data []byte, contentType string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	// the status line is already out; a failed write means the client left
	_, _ = w.Write(data)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Error sends a JSON error body.
func Error(w http.ResponseWriter, statusCode int, message string) {
	ErrorWithDetails(w, statusCode, message, nil)
}

// ErrorWithDetails is Error with a machine-readable payload, such as
// per-field validation problems.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, message string, details any) {
	body, err := json.Marshal(ErrorResponse{Message: message, Code: statusCode, Details: details})
	if err != nil {
		body, _ = json.Marshal(ErrorResponse{Message: message, Code: statusCode})
	}
	Blob(w, statusCode, append(body, '\n'), ContentTypeJSON)
}
