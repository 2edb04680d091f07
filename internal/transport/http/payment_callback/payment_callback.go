package paymentcallback

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	Reconcile(ctx context.Context, orderID uuid.UUID, intentID string) (order.Status, error)
}

// PaymentCallback handles the gateway return-URL redirect. The status query
// parameter the gateway appends is logged but never trusted: the resolved
// status always comes from re-verifying the intent with the gateway.
func PaymentCallback(w http.ResponseWriter, r *http.Request, service service) {
	query := r.URL.Query()
	intentID := query.Get("payment_intent_id")
	orderIDRaw := query.Get("order_id")

	if intentID == "" || orderIDRaw == "" {
		httperr.Write(w, r, apperrors.New(apperrors.KindValidation, "payment_intent_id and order_id are required"))

		return
	}

	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		httperr.Write(w, r, apperrors.Wrap(apperrors.KindValidation, "invalid order_id", err))

		return
	}

	if transportStatus := query.Get("status"); transportStatus != "" {
		slog.InfoContext(r.Context(), "payment callback received",
			"order_id", orderID,
			"payment_intent_id", intentID,
			"transport_status", transportStatus,
		)
	}

	status, err := service.Reconcile(r.Context(), orderID, intentID)
	if err != nil {
		redirectError(w, r, err)

		return
	}

	confirmationURL := viper.GetString("checkout.confirmation_url")
	target := fmt.Sprintf("%s?orderId=%s&status=%s", confirmationURL, orderID, url.QueryEscape(status.String()))
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectError sends the customer to the error view with a correlation id
// for support lookup. The underlying failure is logged, not exposed.
func redirectError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := middleware.GetReqID(r.Context())
	slog.ErrorContext(r.Context(), "payment callback failed",
		"error", err,
		"kind", apperrors.KindOf(err).String(),
	)

	errorURL := viper.GetString("checkout.error_url")
	target := fmt.Sprintf("%s?correlationId=%s", errorURL, url.QueryEscape(correlationID))
	http.Redirect(w, r, target, http.StatusFound)
}
