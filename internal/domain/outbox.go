package domain

import (
	"encoding/json"
	"time"
)

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderEvent is the payload published for every applied order transition.
type OrderEvent struct {
	// EventID lets consumers drop redelivered messages.
	EventID       string      `json:"event_id"`
	OrderID       int64       `json:"order_id"`
	UserID        int64       `json:"user_id"`
	TransactionID string      `json:"transaction_id"`
	Status        Status      `json:"status"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	Items         []OrderItem `json:"items"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// EventTypeFor is the outbox event type for a transition into s, e.g. "order.paid".
func EventTypeFor(s Status) string {
	return "order." + string(s)
}
