// Package outbox moves events recorded in the primary store to their
// destination: the RabbitMQ events exchange, or the notification
// dispatcher directly when no broker is configured.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"shop-service/metrics"
	"shop-service/models"
)

type Store interface {
	FetchPending(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkRetry(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, at time.Time, lastErr string) error
}

type Sink interface {
	Publish(ctx context.Context, ev models.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev models.Event) error

func (f SinkFunc) Publish(ctx context.Context, ev models.Event) error {
	return f(ctx, ev)
}

// Backoff is an exponential delay: Base doubled per attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

type Relay struct {
	store       Store
	sink        Sink
	interval    time.Duration
	batchSize   int
	maxAttempts int
	backoff     Backoff
	now         func() time.Time
}

func NewRelay(store Store, sink Sink, interval time.Duration, batchSize, maxAttempts int, backoff Backoff) *Relay {
	return &Relay{
		store:       store,
		sink:        sink,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Outbox flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// Flush delivers one batch of due events and returns how many were
// delivered. An event is marked published only after the sink accepted
// it, so a crash in between delivers it again.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.now(), r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := r.sink.Publish(ctx, ev.Event); err != nil {
			r.fail(ctx, ev, err)
			continue
		}
		if err := r.store.MarkPublished(ctx, ev.ID, r.now()); err != nil {
			slog.Error("Failed to mark outbox event published", "event_id", ev.ID, "error", err)
			continue
		}
		metrics.RecordOutbox("published")
		delivered++
	}
	return delivered, nil
}

func (r *Relay) fail(ctx context.Context, ev models.OutboxEvent, cause error) {
	attempts := ev.Attempts + 1
	now := r.now()
	if attempts >= r.maxAttempts {
		slog.Error("Outbox event exhausted its attempts",
			"event_id", ev.ID, "type", ev.Type, "attempts", attempts, "error", cause)
		if err := r.store.MarkFailed(ctx, ev.ID, now, cause.Error()); err != nil {
			slog.Error("Failed to mark outbox event failed", "event_id", ev.ID, "error", err)
		}
		metrics.RecordOutbox("failed")
		return
	}

	next := now.Add(r.backoff.Delay(attempts))
	slog.Warn("Outbox delivery failed, will retry",
		"event_id", ev.ID, "type", ev.Type, "attempts", attempts, "next_attempt_at", next, "error", cause)
	if err := r.store.MarkRetry(ctx, ev.ID, attempts, next, cause.Error()); err != nil {
		slog.Error("Failed to schedule outbox retry", "event_id", ev.ID, "error", err)
	}
	metrics.RecordOutbox("retry")
}
