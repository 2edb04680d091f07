package httperr

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
)

// response is the error body returned to clients. CorrelationID is the
// request id, for support lookup.
type response struct {
	Error         string `json:"error"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// statusFor maps the closed error-kind set to HTTP status codes. Gateway
// failures are 502 so the provider's redelivery mechanism retries;
// validation, transition and not-found errors are 4xx and never retried.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindInvalidTransition, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write writes err as a JSON error response.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)

	if status >= 500 {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		slog.WarnContext(r.Context(), "request rejected", "error", err)
	}

	body := response{
		Error:         err.Error(),
		Kind:          kind.String(),
		CorrelationID: middleware.GetReqID(r.Context()),
	}
	if status >= 500 {
		// Internal details stay out of the response body.
		body.Error = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "error writing error response", "error", err)
	}
}

// WriteJSON writes a success payload.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}
