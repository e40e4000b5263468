package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"shop-service/config"
	"shop-service/models"
)

// RetryCountHeader counts how many times a message has been sent back
// through the retry queue.
const RetryCountHeader = "x-retry-count"

// RabbitMQ owns one connection with a confirm-mode channel for publishing
// and a separate channel for consuming.
type RabbitMQ struct {
	Conn      *amqp.Connection
	publishCh *amqp.Channel
	consumeCh *amqp.Channel
	Cfg       *config.Config

	mu sync.Mutex
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	publishCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := publishCh.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	consumeCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := consumeCh.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	return &RabbitMQ{
		Conn:      conn,
		publishCh: publishCh,
		consumeCh: consumeCh,
		Cfg:       cfg,
	}, nil
}

func (r *RabbitMQ) deadLetterExchange() string {
	return r.Cfg.DeadLetterQueue + "_exchange"
}

// SetupQueues declares the topology:
//
//	events exchange -> notification queue -(reject)-> dead-letter exchange -> dead-letter queue
//	retry queue -(message TTL)-> events exchange
func (r *RabbitMQ) SetupQueues() error {
	ch := r.consumeCh

	if err := ch.ExchangeDeclare(r.deadLetterExchange(), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(r.Cfg.DeadLetterQueue, true, false, false, false,
		amqp.Table{"x-queue-type": "classic"}); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(r.Cfg.DeadLetterQueue, r.Cfg.DeadLetterQueue, r.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(r.Cfg.EventExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(r.Cfg.EventQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    r.deadLetterExchange(),
		"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
	}); err != nil {
		return fmt.Errorf("declare event queue: %w", err)
	}
	if err := ch.QueueBind(r.Cfg.EventQueue, r.Cfg.EventQueue, r.Cfg.EventExchange, false, nil); err != nil {
		return fmt.Errorf("bind event queue: %w", err)
	}

	// Nothing consumes the retry queue; messages wait out their TTL and
	// are dead-lettered back onto the events exchange.
	if _, err := ch.QueueDeclare(r.Cfg.RetryQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    r.Cfg.EventExchange,
		"x-dead-letter-routing-key": r.Cfg.EventQueue,
	}); err != nil {
		return fmt.Errorf("declare retry queue: %w", err)
	}
	return nil
}

// PublishEvent publishes ev to the events exchange and waits for the
// broker to confirm it.
func (r *RabbitMQ) PublishEvent(ctx context.Context, ev models.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.publish(ctx, r.Cfg.EventExchange, r.Cfg.EventQueue, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    strconv.FormatInt(ev.ID, 10),
		Type:         string(ev.Type),
		Body:         body,
	})
}

// PublishDelayed parks body in the retry queue for delay, after which it
// is redelivered to the notification queue with attempt recorded in the
// retry-count header.
func (r *RabbitMQ) PublishDelayed(ctx context.Context, d amqp.Delivery, attempt int, delay time.Duration) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		if k == "x-death" {
			continue
		}
		headers[k] = v
	}
	headers[RetryCountHeader] = int32(attempt)

	return r.publish(ctx, "", r.Cfg.RetryQueue, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Headers:      headers,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         d.Body,
	})
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	confirm, err := r.publishCh.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %q: %w", exchange, err)
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publish confirm: %w", err)
	}
	if !ok {
		return errors.New("broker nacked publish")
	}
	return nil
}

func (r *RabbitMQ) Consume(queue, tag string) (<-chan amqp.Delivery, error) {
	msgs, err := r.consumeCh.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", queue, err)
	}
	return msgs, nil
}

func (r *RabbitMQ) Close() {
	for _, ch := range []*amqp.Channel{r.consumeCh, r.publishCh} {
		if ch != nil {
			if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				slog.Warn("Failed to close RabbitMQ channel", "error", err)
			}
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			slog.Warn("Failed to close RabbitMQ connection", "error", err)
		}
	}
}
