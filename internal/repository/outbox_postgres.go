package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload,
	status, retry_count, COALESCE(error_message, ''), created_at, processed_at`

// OutboxPostgresRepository is the pgx-backed outbox store
type OutboxPostgresRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates an outbox repository backed by Postgres
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxPostgresRepository {
	return &OutboxPostgresRepository{pool: pool}
}

func (r *OutboxPostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	return beginPgxTx(ctx, r.pool)
}

func (r *OutboxPostgresRepository) CreateTx(ctx context.Context, tx Tx, evt *domain.OutboxEvent) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	_, err = ptx.Exec(ctx, `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type,
			payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType,
		evt.Payload, evt.Status, evt.RetryCount, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", evt.ID, err)
	}
	return nil
}

func (r *OutboxPostgresRepository) GetPendingEventsTx(ctx context.Context, tx Tx, limit int) ([]*domain.OutboxEvent, error) {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := ptx.Query(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}
	defer rows.Close()
	return scanOutboxEvents(rows)
}

func (r *OutboxPostgresRepository) GetRetryableEventsTx(ctx context.Context, tx Tx, limit, maxRetries int, backoff time.Duration) ([]*domain.OutboxEvent, error) {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-backoff)
	rows, err := ptx.Query(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
		 WHERE status = $1 AND retry_count < $2 AND created_at < $3
		 ORDER BY created_at ASC
		 LIMIT $4
		 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusFailed, maxRetries, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable outbox events: %w", err)
	}
	defer rows.Close()
	return scanOutboxEvents(rows)
}

func (r *OutboxPostgresRepository) MarkProcessedTx(ctx context.Context, tx Tx, id string) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	_, err = ptx.Exec(ctx,
		`UPDATE outbox_events
		 SET status = $1, processed_at = NOW(), error_message = NULL
		 WHERE id = $2`,
		domain.OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %s processed: %w", id, err)
	}
	return nil
}

func (r *OutboxPostgresRepository) MarkFailedTx(ctx context.Context, tx Tx, id, errMsg string) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	_, err = ptx.Exec(ctx,
		`UPDATE outbox_events
		 SET status = $1, retry_count = retry_count + 1, error_message = $2
		 WHERE id = $3`,
		domain.OutboxStatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %s failed: %w", id, err)
	}
	return nil
}

func (r *OutboxPostgresRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox_events WHERE status = $1 AND processed_at < $2`,
		domain.OutboxStatusProcessed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEvents(rows pgx.Rows) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	for rows.Next() {
		evt := &domain.OutboxEvent{}
		err := rows.Scan(&evt.ID, &evt.AggregateType, &evt.AggregateID, &evt.EventType,
			&evt.Payload, &evt.Status, &evt.RetryCount, &evt.ErrorMessage,
			&evt.CreatedAt, &evt.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
