package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/dal/rabbitmq"
	outboxrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/outbox/postgres"
	"github.com/corray333/backend-labs/payment/internal/gateway/airwallex"
	"github.com/corray333/backend-labs/payment/internal/otel"
	"github.com/corray333/backend-labs/payment/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/payment/internal/service/services/paymentsvc"
	httptransport "github.com/corray333/backend-labs/payment/internal/transport/http"
	outboxworker "github.com/corray333/backend-labs/payment/internal/worker/outbox"
	sweeperworker "github.com/corray333/backend-labs/payment/internal/worker/sweeper"
)

// App represents the application.
type App struct {
	orderSvc       *ordersvc.OrderService
	paymentSvc     *paymentsvc.PaymentService
	transport      *httptransport.HTTPTransport
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	outboxWorker   *outboxworker.Worker
	sweeperWorker  *sweeperworker.Worker
	otelController *otel.OtelController
}

// MustNewApp creates a new application. All clients are constructed once
// here and passed down explicitly; there is no package-level shared state.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()

	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()
	gatewayClient := airwallex.NewClient()

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
	)
	paymentSvc := paymentsvc.MustNewPaymentService(
		paymentsvc.WithPostgresClient(postgresClient),
		paymentsvc.WithGateway(gatewayClient),
	)

	transport := httptransport.NewHTTPTransport(orderSvc, paymentSvc)
	transport.RegisterRoutes()

	outboxWorker := outboxworker.NewWorker(
		outboxrepo.NewOutboxRepository(postgresClient.Pool()),
		rabbitClient,
	)
	sweeperWorker := sweeperworker.NewWorker(paymentSvc)

	return &App{
		orderSvc:       orderSvc,
		paymentSvc:     paymentSvc,
		transport:      transport,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		outboxWorker:   outboxWorker,
		sweeperWorker:  sweeperWorker,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go a.outboxWorker.Start(workerCtx)
	go a.sweeperWorker.Start(workerCtx)

	<-stop
	slog.Info("Shutdown signal received")

	cancelWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Trace provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
