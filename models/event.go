package models

import "time"

type EventType string

const (
	EventOrderStatusChanged EventType = "order.status_changed"
	EventPromotionCreated   EventType = "promotion.created"
)

// Event is the message written to the outbox and carried over RabbitMQ.
type Event struct {
	ID          int64     `json:"id"`
	Type        EventType `json:"type"`
	OrderID     string    `json:"orderId,omitempty"`
	Status      string    `json:"status,omitempty"`
	PromotionID string    `json:"promotionId,omitempty"`
	Occurred    time.Time `json:"occurred"`
}

// AggregateID is the id of the record the event is about.
func (e Event) AggregateID() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.PromotionID
}

type OutboxEvent struct {
	Event
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	PublishedAt   *time.Time
	FailedAt      *time.Time
}
