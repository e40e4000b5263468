package consumers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"shop-service/models"
	"shop-service/outbox"
	"shop-service/rabbitmq"
)

type EventHandler interface {
	Handle(ctx context.Context, ev models.Event) error
}

type Retrier interface {
	PublishDelayed(ctx context.Context, d amqp.Delivery, attempt int, delay time.Duration) error
}

// NotificationConsumer feeds events from the notification queue to the
// dispatcher, sending failures through the retry queue until maxAttempts
// is reached and then to the dead-letter queue.
type NotificationConsumer struct {
	handler     EventHandler
	retrier     Retrier
	maxAttempts int
	backoff     outbox.Backoff
}

func NewNotificationConsumer(handler EventHandler, retrier Retrier, maxAttempts int, backoff outbox.Backoff) *NotificationConsumer {
	return &NotificationConsumer{handler: handler, retrier: retrier, maxAttempts: maxAttempts, backoff: backoff}
}

// Run processes deliveries until ctx is cancelled or the channel closes.
func (c *NotificationConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("Notification delivery channel closed")
				return
			}
			c.Process(ctx, msg)
		}
	}
}

func (c *NotificationConsumer) Process(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in message processing", "panic", r, "message_id", msg.MessageId)
			_ = msg.Nack(false, false)
		}
	}()

	var ev models.Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		slog.Error("Invalid event message, dead-lettering", "message_id", msg.MessageId, "error", err)
		_ = msg.Nack(false, false)
		return
	}

	err := c.handler.Handle(ctx, ev)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			slog.Error("Failed to ack message", "event_id", ev.ID, "error", ackErr)
		}
		return
	}

	attempt := RetryCount(msg.Headers) + 1
	if attempt >= c.maxAttempts {
		slog.Error("Notification failed permanently, dead-lettering",
			"event_id", ev.ID, "type", ev.Type, "attempts", attempt, "error", err)
		_ = msg.Nack(false, false)
		return
	}

	delay := c.backoff.Delay(attempt)
	if pubErr := c.retrier.PublishDelayed(ctx, msg, attempt, delay); pubErr != nil {
		slog.Error("Failed to schedule retry, requeueing", "event_id", ev.ID, "error", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	slog.Warn("Notification failed, retry scheduled",
		"event_id", ev.ID, "type", ev.Type, "attempt", attempt, "delay", delay, "error", err)
	_ = msg.Ack(false)
}

// RunDeadLetters logs and acknowledges messages that reached the
// dead-letter queue.
func RunDeadLetters(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ProcessDeadLetter(msg)
		}
	}
}

func ProcessDeadLetter(msg amqp.Delivery) {
	slog.Error("Received dead letter",
		"message_id", msg.MessageId, "type", msg.Type,
		"retries", RetryCount(msg.Headers), "body", string(msg.Body))
	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack dead letter", "message_id", msg.MessageId, "error", err)
	}
}

// RetryCount reads the retry-count header, treating a missing or malformed
// value as zero.
func RetryCount(headers amqp.Table) int {
	switch v := headers[rabbitmq.RetryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}
