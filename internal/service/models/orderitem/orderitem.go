package orderitem

import (
	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/money"
)

// OrderItem is a line within an order. Price is a snapshot taken at
// checkout, not a live reference to the catalog price.
type OrderItem struct {
	ID        uuid.UUID   `json:"id"`
	OrderID   uuid.UUID   `json:"orderId"`
	ProductID uuid.UUID   `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     money.Money `json:"price"`
}
