package outbox

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
)

// Worker drains staged payment events from the outbox table into RabbitMQ.
// Events are staged in the same transaction as the state change they
// announce, so an event exists iff the change committed; the worker only
// has to deliver and delete.
type Worker struct {
	outboxRepo   ioutboxrepo.IOutboxRepository
	rabbitClient *rabbitmq.Client

	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// NewWorker creates an outbox worker configured from rabbitmq.outbox.* keys.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	rabbitClient *rabbitmq.Client,
) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("rabbitmq.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	return &Worker{
		outboxRepo:   outboxRepo,
		rabbitClient: rabbitClient,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) drain(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to read pending outbox messages", "error", err)

		return
	}
	if len(messages) == 0 {
		return
	}

	slog.Info("Publishing outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := w.publish(msg); err != nil {
			w.scheduleRetry(ctx, msg, err)

			continue
		}

		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			// The row survives and the event will be published again;
			// consumers deduplicate on the payment intent id.
			slog.Error("Failed to delete published outbox message", "outbox_id", msg.ID, "error", err)
		}
	}
}

func (w *Worker) publish(msg outbox.OutboxMessage) error {
	return w.rabbitClient.Channel().Publish(
		msg.ExchangeName,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Payload,
		},
	)
}

func (w *Worker) scheduleRetry(ctx context.Context, msg outbox.OutboxMessage, cause error) {
	retryCount := msg.RetryCount + 1
	backoff := time.Duration(math.Pow(2, float64(retryCount))*30) * time.Second
	nextRetryAt := time.Now().Add(backoff)

	slog.Warn("Failed to publish outbox message, scheduling retry",
		"outbox_id", msg.ID,
		"retry_count", retryCount,
		"next_retry", nextRetryAt,
		"error", cause,
	)

	if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, retryCount, cause.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to record outbox retry", "outbox_id", msg.ID, "error", err)
	}
}
