package createintent

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/intent"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, returnURL string) (intent.PaymentIntent, error)
}

type request struct {
	OrderID   uuid.UUID `json:"orderId"`
	ReturnURL string    `json:"returnUrl"`
}

type response struct {
	PaymentIntent intent.PaymentIntent `json:"paymentIntent"`
}

// CreateIntent handles the create-payment-intent request. Amount and
// currency are always taken from the stored order, never from the request.
func CreateIntent(w http.ResponseWriter, r *http.Request, service service) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "failed to decode request body", err))

		return
	}

	if req.OrderID == uuid.Nil {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "orderId is required"))

		return
	}
	if req.ReturnURL == "" {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "returnUrl is required"))

		return
	}

	pi, err := service.CreateIntent(r.Context(), req.OrderID, req.ReturnURL)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	httperr.WriteJSON(w, r, http.StatusCreated, response{PaymentIntent: pi})
}
