package webhooks_repo

import (
	"context"

	"checkout/internal/domain"
)

type WebhookRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, event *domain.WebhookEvent) error
	MarkProcessedTx(ctx context.Context, querier domain.Querier, id string, processingError string) error
	ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string, limit int) ([]domain.WebhookEvent, error)
	CountByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) (int, error)
}
