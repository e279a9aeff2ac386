package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/repository/payments_repo"
)

func TestIsStale(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	tests := []struct {
		name   string
		stored *domain.Payment
		upd    GatewayUpdate
		want   bool
	}{
		{
			name:   "older timestamp is stale",
			stored: &domain.Payment{Status: domain.PaymentStatusApproved, GatewayUpdatedAt: &t2},
			upd:    GatewayUpdate{Status: domain.PaymentStatusPending, GatewayUpdatedAt: &t1},
			want:   true,
		},
		{
			name:   "newer timestamp wins",
			stored: &domain.Payment{Status: domain.PaymentStatusPending, GatewayUpdatedAt: &t1},
			upd:    GatewayUpdate{Status: domain.PaymentStatusApproved, GatewayUpdatedAt: &t2},
			want:   false,
		},
		{
			name:   "equal timestamps are applied",
			stored: &domain.Payment{Status: domain.PaymentStatusPending, GatewayUpdatedAt: &t1},
			upd:    GatewayUpdate{Status: domain.PaymentStatusApproved, GatewayUpdatedAt: &t1},
			want:   false,
		},
		{
			name:   "no timestamps, terminal never regresses",
			stored: &domain.Payment{Status: domain.PaymentStatusApproved},
			upd:    GatewayUpdate{Status: domain.PaymentStatusPending},
			want:   true,
		},
		{
			name:   "no timestamps, terminal to terminal is applied",
			stored: &domain.Payment{Status: domain.PaymentStatusApproved},
			upd:    GatewayUpdate{Status: domain.PaymentStatusCancelled},
			want:   false,
		},
		{
			name:   "no timestamps, pending moves forward",
			stored: &domain.Payment{Status: domain.PaymentStatusPending},
			upd:    GatewayUpdate{Status: domain.PaymentStatusApproved},
			want:   false,
		},
		{
			name:   "incoming timestamp only, applied",
			stored: &domain.Payment{Status: domain.PaymentStatusPending},
			upd:    GatewayUpdate{Status: domain.PaymentStatusApproved, GatewayUpdatedAt: &t1},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isStale(tt.stored, tt.upd))
		})
	}
}

// The stub driver only supports transaction boundaries; every query goes
// through the fake repositories, which ignore the querier.
type stubConnector struct{}

func (stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn{}, nil }
func (stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

// racingPaymentRepo simulates losing a first-insert race: CreateTx fails
// with the unique-constraint sentinel and commits the concurrent winner's
// row, so the next locked read finds it.
type racingPaymentRepo struct {
	winner  *domain.Payment
	row     *domain.Payment
	gets    int
	creates int
	updates []payments_repo.GatewayFields
}

func (r *racingPaymentRepo) CreateTx(_ context.Context, _ domain.Querier, _ *domain.Payment) error {
	r.creates++
	r.row = r.winner
	return domain.ErrDuplicateReference
}

func (r *racingPaymentRepo) GetByGatewayIDTx(_ context.Context, _ domain.Querier, _ string, _ bool) (*domain.Payment, error) {
	r.gets++
	if r.row == nil {
		return nil, domain.ErrPaymentNotFound
	}
	row := *r.row
	return &row, nil
}

func (r *racingPaymentRepo) GetByExternalReferenceTx(_ context.Context, _ domain.Querier, _ string) (*domain.Payment, error) {
	return nil, domain.ErrPaymentNotFound
}

func (r *racingPaymentRepo) AttachGatewayTx(_ context.Context, _ domain.Querier, _, _ string, _ domain.PaymentStatus) error {
	return nil
}

func (r *racingPaymentRepo) UpdateFromGatewayTx(_ context.Context, _ domain.Querier, upd payments_repo.GatewayFields) error {
	r.updates = append(r.updates, upd)
	return nil
}

func (r *racingPaymentRepo) ListTx(_ context.Context, _ domain.Querier, _ payments_repo.ListFilter) ([]domain.Payment, error) {
	return nil, nil
}

func (r *racingPaymentRepo) CountTx(_ context.Context, _ domain.Querier, _ payments_repo.ListFilter) (int, error) {
	return 0, nil
}

type noopWebhookRepo struct{}

func (noopWebhookRepo) CreateTx(_ context.Context, _ domain.Querier, _ *domain.WebhookEvent) error {
	return nil
}

func (noopWebhookRepo) MarkProcessedTx(_ context.Context, _ domain.Querier, _, _ string) error {
	return nil
}

func (noopWebhookRepo) ListByPaymentTx(_ context.Context, _ domain.Querier, _ string, _ int) ([]domain.WebhookEvent, error) {
	return nil, nil
}

func (noopWebhookRepo) CountByPaymentTx(_ context.Context, _ domain.Querier, _ string) (int, error) {
	return 0, nil
}

type captureOutboxRepo struct {
	messages []domain.OutboxMessage
}

func (r *captureOutboxRepo) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *captureOutboxRepo) GetPendingMessages(_ context.Context, _ domain.Querier, _ int) ([]domain.OutboxMessage, error) {
	return nil, nil
}

func (r *captureOutboxRepo) MarkMessagesAsSent(_ context.Context, _ domain.Querier, _ []string) error {
	return nil
}

func TestApplyGatewayUpdateRetriesAfterLosingFirstInsertRace(t *testing.T) {
	db := sql.OpenDB(stubConnector{})
	t.Cleanup(func() { db.Close() })

	payments := &racingPaymentRepo{winner: &domain.Payment{
		ID:                "w-1",
		GatewayID:         "42",
		ExternalReference: "order_1",
		Status:            domain.PaymentStatusPending,
	}}
	outbox := &captureOutboxRepo{}
	st := New(db, payments, noopWebhookRepo{}, outbox, zap.NewNop())

	res, err := st.ApplyGatewayUpdate(context.Background(), GatewayUpdate{
		GatewayID:         "42",
		ExternalReference: "order_1",
		Status:            domain.PaymentStatusApproved,
	})

	require.NoError(t, err, "losing the insert race must not surface an error")
	require.True(t, res.Applied)
	require.False(t, res.Created)
	require.Equal(t, domain.PaymentStatusApproved, res.Payment.Status)
	require.Equal(t, 1, payments.creates, "insert is attempted once")
	require.Equal(t, 2, payments.gets, "retry re-reads the row the winner committed")
	require.Len(t, payments.updates, 1)
	require.Len(t, outbox.messages, 1, "status change still lands in the outbox")
}
