package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/security"
)

// retryAfter is the hint, in seconds, sent with 503 and 429 responses.
const retryAfter = "5"

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error from the facade or request validation to an HTTP
// status code.
func statusFor(err error) int {
	switch {
	case memory.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidItem),
		errors.Is(err, memory.ErrInvalidTurn),
		errors.Is(err, memory.ErrNoOwnerScope),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, memory.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case memory.IsStoreUnavailable(err), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError writes err as a JSON body. Server-side failures are reported
// without detail.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		w.Header().Set("Retry-After", retryAfter)
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
