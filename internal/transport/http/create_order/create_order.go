package createorder

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/money"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, items []orderitem.OrderItem) (*order.Order, error)
}

type itemRequest struct {
	ProductID     uuid.UUID `json:"productId"`
	Quantity      int       `json:"quantity"`
	PriceCents    int64     `json:"priceCents"`
	PriceCurrency string    `json:"priceCurrency"`
}

type request struct {
	UserID uuid.UUID     `json:"userId"`
	Items  []itemRequest `json:"items"`
}

// CreateOrder handles checkout: it creates a PENDING order from item price
// snapshots.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "failed to decode request body", err))

		return
	}

	if req.UserID == uuid.Nil {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "userId is required"))

		return
	}

	items := make([]orderitem.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		cur, err := currency.ParseCurrency(it.PriceCurrency)
		if err != nil {
			httperr.Write(w, r, apperrors.Newf(apperrors.KindValidation, "item %d: invalid currency %q", i, it.PriceCurrency))

			return
		}
		price, err := money.New(it.PriceCents, cur)
		if err != nil {
			httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "invalid item price", err))

			return
		}

		items = append(items, orderitem.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     price,
		})
	}

	o, err := service.CreateOrder(r.Context(), req.UserID, items)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	httperr.WriteJSON(w, r, http.StatusCreated, o)
}
