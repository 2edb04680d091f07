package updateorderstatus

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	Transition(ctx context.Context, id uuid.UUID, to order.Status) (*order.Order, error)
}

type request struct {
	Status string `json:"status"`
}

// UpdateOrderStatus handles an explicit status transition request
// (ship/deliver/cancel). Marking an order paid goes through payment
// reconciliation, never through this endpoint.
func UpdateOrderStatus(w http.ResponseWriter, r *http.Request, service service) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "invalid order id", err))

		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "failed to decode request body", err))

		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "invalid status", err))

		return
	}
	if status == order.StatusPaid {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "orders are marked paid by payment reconciliation"))

		return
	}

	o, err := service.Transition(r.Context(), id, status)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	httperr.WriteJSON(w, r, http.StatusOK, o)
}
