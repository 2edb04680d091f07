package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/payment/internal/service/models/intent"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
	confirmintent "github.com/corray333/backend-labs/payment/internal/transport/http/confirm_intent"
	createintent "github.com/corray333/backend-labs/payment/internal/transport/http/create_intent"
	createorder "github.com/corray333/backend-labs/payment/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/payment/internal/transport/http/get_order"
	listtransactions "github.com/corray333/backend-labs/payment/internal/transport/http/list_transactions"
	paymentcallback "github.com/corray333/backend-labs/payment/internal/transport/http/payment_callback"
	updateorderstatus "github.com/corray333/backend-labs/payment/internal/transport/http/update_order_status"
	"github.com/corray333/backend-labs/payment/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/payment/pkg/logger"
)

type orderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, items []orderitem.OrderItem) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	Transition(ctx context.Context, id uuid.UUID, to order.Status) (*order.Order, error)
}

type paymentService interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, returnURL string) (intent.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, intentID string, payload json.RawMessage) (json.RawMessage, error)
	Reconcile(ctx context.Context, orderID uuid.UUID, intentID string) (order.Status, error)
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]transaction.Record, error)
}

type HTTPTransport struct {
	server     *http.Server
	router     *chi.Mux
	orderSvc   orderService
	paymentSvc paymentService
}

func NewHTTPTransport(orderSvc orderService, paymentSvc paymentService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:     server,
		router:     router,
		orderSvc:   orderSvc,
		paymentSvc: paymentSvc,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/status", h.updateOrderStatus)
			r.Get("/{id}/transactions", h.listTransactions)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/intents", h.createIntent)
			r.Put("/intents/{id}", h.confirmIntent)
			r.Get("/callback", h.paymentCallback)
		})
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.orderSvc)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orderSvc)
}

func (h *HTTPTransport) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	updateorderstatus.UpdateOrderStatus(w, r, h.orderSvc)
}

func (h *HTTPTransport) listTransactions(w http.ResponseWriter, r *http.Request) {
	listtransactions.ListTransactions(w, r, h.paymentSvc)
}

func (h *HTTPTransport) createIntent(w http.ResponseWriter, r *http.Request) {
	createintent.CreateIntent(w, r, h.paymentSvc)
}

func (h *HTTPTransport) confirmIntent(w http.ResponseWriter, r *http.Request) {
	confirmintent.ConfirmIntent(w, r, h.paymentSvc)
}

func (h *HTTPTransport) paymentCallback(w http.ResponseWriter, r *http.Request) {
	paymentcallback.PaymentCallback(w, r, h.paymentSvc)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
