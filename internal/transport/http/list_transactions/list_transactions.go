package listtransactions

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]transaction.Record, error)
}

type response struct {
	Transactions []transaction.Record `json:"transactions"`
}

// ListTransactions returns the payment ledger for an order, for audit and
// support debugging.
func ListTransactions(w http.ResponseWriter, r *http.Request, service service) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "invalid order id", err))

		return
	}

	records, err := service.ListTransactions(r.Context(), orderID)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	if records == nil {
		records = []transaction.Record{}
	}

	httperr.WriteJSON(w, r, http.StatusOK, response{Transactions: records})
}
