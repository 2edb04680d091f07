package outbox

import (
	"time"
)

// OutboxMessage is a payment event staged for publication to RabbitMQ.
// Rows are written in the same transaction as the state change they
// announce and drained by the outbox worker.
type OutboxMessage struct {
	ID           int64
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}
