package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shop-service/models"
)

type OutboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Add records an event for later delivery. Run inside the transaction of
// the write that caused it.
func (r *OutboxRepository) Add(ctx context.Context, ev models.Event) (int64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode outbox event: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_events (type, aggregate_id, payload, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		ev.Type, ev.AggregateID(), payload, ev.Occurred, ev.Occurred)
	if err != nil {
		return 0, fmt.Errorf("insert outbox event: %w", err)
	}
	return res.LastInsertId()
}

// FetchPending returns undelivered events whose next attempt is due.
func (r *OutboxRepository) FetchPending(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payload, attempts, next_attempt_at, last_error
		FROM outbox_events
		WHERE published_at IS NULL AND failed_at IS NULL AND next_attempt_at <= ?
		ORDER BY id ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			payload []byte
			lastErr sql.NullString
		)
		if err := rows.Scan(&ev.ID, &payload, &ev.Attempts, &ev.NextAttemptAt, &lastErr); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		id := ev.ID
		if err := json.Unmarshal(payload, &ev.Event); err != nil {
			return nil, fmt.Errorf("decode outbox event %d: %w", id, err)
		}
		ev.ID = id
		ev.LastError = lastErr.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET published_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return affected(res)
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		attempts, next, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	return affected(res)
}

// MarkFailed parks an event that exhausted its attempts.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, at time.Time, lastErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events SET failed_at = ?, last_error = ? WHERE id = ?`, at, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return affected(res)
}
