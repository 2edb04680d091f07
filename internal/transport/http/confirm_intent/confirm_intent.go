package confirmintent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	ConfirmIntent(ctx context.Context, intentID string, payload json.RawMessage) (json.RawMessage, error)
}

// ConfirmIntent forwards payment method details to the gateway and returns
// the confirmation payload verbatim. The order status is not touched here;
// reconciliation decides it from the authoritative intent status.
func ConfirmIntent(w http.ResponseWriter, r *http.Request, service service) {
	intentID := chi.URLParam(r, "id")
	if intentID == "" {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "intent id is required"))

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "failed to read request body", err))

		return
	}
	if !json.Valid(body) {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "request body must be valid JSON"))

		return
	}

	confirmation, err := service.ConfirmIntent(r.Context(), intentID, body)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(confirmation); err != nil {
		httperr.Write(w, r, err)
	}
}
