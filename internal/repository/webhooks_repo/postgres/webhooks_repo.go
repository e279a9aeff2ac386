package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout/internal/domain"
)

type webhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *webhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) CreateTx(ctx context.Context, querier domain.Querier, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, payment_id, event_type, payload, processed, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := querier.ExecContext(ctx, query,
		event.ID,
		event.PaymentID,
		event.EventType,
		event.Payload,
		event.Processed,
		event.Error,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (r *webhookRepository) MarkProcessedTx(ctx context.Context, querier domain.Querier, id string, processingError string) error {
	query := `
		UPDATE webhook_events
		SET processed = TRUE, processed_at = $1, error = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, time.Now(), processingError, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s processed: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for webhook event update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no webhook event found with id %s", id)
	}
	return nil
}

func (r *webhookRepository) ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string, limit int) ([]domain.WebhookEvent, error) {
	query := `
		SELECT id, payment_id, event_type, payload, processed, processed_at, error, created_at
		FROM webhook_events
		WHERE payment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := querier.QueryContext(ctx, query, paymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events for payment %s: %w", paymentID, err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e := domain.WebhookEvent{}
		var processedAt sql.NullTime
		err := rows.Scan(
			&e.ID,
			&e.PaymentID,
			&e.EventType,
			&e.Payload,
			&e.Processed,
			&processedAt,
			&e.Error,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		if processedAt.Valid {
			e.ProcessedAt = &processedAt.Time
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}
	return events, nil
}

func (r *webhookRepository) CountByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) (int, error) {
	var count int
	err := querier.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE payment_id = $1`, paymentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook events for payment %s: %w", paymentID, err)
	}
	return count, nil
}
