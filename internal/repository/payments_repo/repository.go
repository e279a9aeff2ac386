package payments_repo

import (
	"context"
	"time"

	"checkout/internal/domain"
)

// ListFilter narrows and pages payment listings.
type ListFilter struct {
	Status string
	Email  string
	Page   int
	Limit  int
}

// GatewayFields are the authoritative values taken from a gateway fetch;
// the update is a full overwrite keyed on gateway id.
type GatewayFields struct {
	GatewayID        string
	Status           domain.PaymentStatus
	StatusDetail     string
	RejectionReason  string
	GatewayUpdatedAt *time.Time
}

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByGatewayIDTx(ctx context.Context, querier domain.Querier, gatewayID string, forUpdate bool) (*domain.Payment, error)
	GetByExternalReferenceTx(ctx context.Context, querier domain.Querier, externalReference string) (*domain.Payment, error)
	AttachGatewayTx(ctx context.Context, querier domain.Querier, id, gatewayID string, status domain.PaymentStatus) error
	UpdateFromGatewayTx(ctx context.Context, querier domain.Querier, upd GatewayFields) error
	ListTx(ctx context.Context, querier domain.Querier, filter ListFilter) ([]domain.Payment, error)
	CountTx(ctx context.Context, querier domain.Querier, filter ListFilter) (int, error)
}
