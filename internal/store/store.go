// Package store exposes the persistence unit of work consumed by the
// checkout and reconciler services. It owns transaction boundaries and the
// ordering rules that keep concurrent webhook deliveries from corrupting a
// payment record.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/repository/outbox_repo"
	"checkout/internal/repository/payments_repo"
	"checkout/internal/repository/webhooks_repo"
)

// webhookHistoryLimit caps how many audit rows are attached to a payment
// lookup, newest first.
const webhookHistoryLimit = 10

// GatewayUpdate carries the authoritative fields of a gateway fetch. The
// gateway is the source of truth: an accepted update is a full overwrite of
// the gateway-owned columns, keyed on gateway id. The payer fields are only
// used when the payment is not yet known locally and has to be inserted.
type GatewayUpdate struct {
	GatewayID         string
	Status            domain.PaymentStatus
	StatusDetail      string
	RejectionReason   string
	GatewayUpdatedAt  *time.Time
	ExternalReference string
	Amount            float64
	PaymentMethod     string
	PayerName         string
	PayerEmail        string
	PayerCPF          string
	Description       string
}

// ApplyResult reports what ApplyGatewayUpdate did. WasApproved reflects the
// stored status before the update and is the guard that keeps a duplicate
// "approved" notification from sending a second confirmation email.
type ApplyResult struct {
	Payment     *domain.Payment
	Applied     bool
	Created     bool
	WasApproved bool
}

// RecentPayment is a listing row enriched with webhook audit information.
type RecentPayment struct {
	Payment      domain.Payment
	WebhookCount int
	LastWebhook  *domain.WebhookEvent
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	AttachGatewayPayment(ctx context.Context, id, gatewayID string, status domain.PaymentStatus) error
	GetByGatewayID(ctx context.Context, gatewayID string) (*domain.Payment, error)
	GetByExternalReference(ctx context.Context, externalReference string) (*domain.Payment, error)
	List(ctx context.Context, filter payments_repo.ListFilter) ([]domain.Payment, int, error)
	Recent(ctx context.Context, limit int) ([]RecentPayment, int, error)
	ApplyGatewayUpdate(ctx context.Context, upd GatewayUpdate) (*ApplyResult, error)
	LogWebhookEvent(ctx context.Context, paymentID, eventType string, payload []byte) (string, error)
	MarkWebhookProcessed(ctx context.Context, eventID, processingError string) error
}

type Store struct {
	db       *sql.DB
	payments payments_repo.PaymentRepository
	webhooks webhooks_repo.WebhookRepository
	outbox   outbox_repo.OutboxRepository
	logger   *zap.Logger
}

func New(
	db *sql.DB,
	payments payments_repo.PaymentRepository,
	webhooks webhooks_repo.WebhookRepository,
	outbox outbox_repo.OutboxRepository,
	logger *zap.Logger,
) *Store {
	return &Store{
		db:       db,
		payments: payments,
		webhooks: webhooks,
		outbox:   outbox,
		logger:   logger,
	}
}

func (s *Store) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if err := s.payments.CreateTx(ctx, s.db, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return err
		}
		return &domain.StoreError{Op: "create payment", Err: err}
	}
	return nil
}

func (s *Store) AttachGatewayPayment(ctx context.Context, id, gatewayID string, status domain.PaymentStatus) error {
	if err := s.payments.AttachGatewayTx(ctx, s.db, id, gatewayID, status); err != nil {
		return &domain.StoreError{Op: "attach gateway payment", Err: err}
	}
	return nil
}

func (s *Store) GetByGatewayID(ctx context.Context, gatewayID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByGatewayIDTx(ctx, s.db, gatewayID, false)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "get payment by gateway id", Err: err}
	}
	return s.withWebhookHistory(ctx, payment)
}

func (s *Store) GetByExternalReference(ctx context.Context, externalReference string) (*domain.Payment, error) {
	payment, err := s.payments.GetByExternalReferenceTx(ctx, s.db, externalReference)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "get payment by reference", Err: err}
	}
	return s.withWebhookHistory(ctx, payment)
}

func (s *Store) withWebhookHistory(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	events, err := s.webhooks.ListByPaymentTx(ctx, s.db, payment.ID, webhookHistoryLimit)
	if err != nil {
		return nil, &domain.StoreError{Op: "list webhook events", Err: err}
	}
	payment.WebhookEvents = events
	return payment, nil
}

func (s *Store) List(ctx context.Context, filter payments_repo.ListFilter) ([]domain.Payment, int, error) {
	payments, err := s.payments.ListTx(ctx, s.db, filter)
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "list payments", Err: err}
	}
	total, err := s.payments.CountTx(ctx, s.db, filter)
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "count payments", Err: err}
	}
	return payments, total, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]RecentPayment, int, error) {
	payments, err := s.payments.ListTx(ctx, s.db, payments_repo.ListFilter{Page: 1, Limit: limit})
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "list recent payments", Err: err}
	}
	total, err := s.payments.CountTx(ctx, s.db, payments_repo.ListFilter{})
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "count payments", Err: err}
	}

	recent := make([]RecentPayment, 0, len(payments))
	for _, p := range payments {
		count, err := s.webhooks.CountByPaymentTx(ctx, s.db, p.ID)
		if err != nil {
			return nil, 0, &domain.StoreError{Op: "count webhook events", Err: err}
		}
		rp := RecentPayment{Payment: p, WebhookCount: count}
		if count > 0 {
			events, err := s.webhooks.ListByPaymentTx(ctx, s.db, p.ID, 1)
			if err != nil {
				return nil, 0, &domain.StoreError{Op: "get last webhook event", Err: err}
			}
			if len(events) > 0 {
				rp.LastWebhook = &events[0]
			}
		}
		recent = append(recent, rp)
	}
	return recent, total, nil
}

// ApplyGatewayUpdate upserts the gateway-reported state keyed on gateway id.
// The row is locked for the duration of the transaction so concurrent
// deliveries for the same payment serialize. A strictly older
// gateway_updated_at is rejected as stale, and a terminal status never
// regresses to PENDING/IN_PROCESS when the timestamps are incomparable.
// When the status changes, a payment-status event is written to the outbox
// in the same transaction.
//
// A payment unknown to both lookups has no row to lock, so two concurrent
// first deliveries can race the insert. The loser hits the unique constraint
// on gateway_id; the transaction is retried once and finds the row the
// winner committed.
func (s *Store) ApplyGatewayUpdate(ctx context.Context, upd GatewayUpdate) (*ApplyResult, error) {
	result, err := s.applyGatewayUpdateOnce(ctx, upd)
	if err != nil && errors.Is(err, domain.ErrDuplicateReference) {
		result, err = s.applyGatewayUpdateOnce(ctx, upd)
	}
	return result, err
}

func (s *Store) applyGatewayUpdateOnce(ctx context.Context, upd GatewayUpdate) (*ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StoreError{Op: "begin gateway update", Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	result, err := s.applyGatewayUpdateTx(ctx, tx, upd)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back gateway update transaction",
				zap.String("gateway_id", upd.GatewayID), zap.Error(rbErr))
		}
		return nil, &domain.StoreError{Op: "apply gateway update", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.StoreError{Op: "commit gateway update", Err: err}
	}
	return result, nil
}

func (s *Store) applyGatewayUpdateTx(ctx context.Context, tx *sql.Tx, upd GatewayUpdate) (*ApplyResult, error) {
	stored, err := s.payments.GetByGatewayIDTx(ctx, tx, upd.GatewayID, true)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	if stored == nil || errors.Is(err, domain.ErrPaymentNotFound) {
		// A PIX row created before the gateway call still carries its
		// placeholder gateway id when the attach step failed. Adopt it by
		// external reference instead of inserting a duplicate.
		if upd.ExternalReference != "" {
			if adopted, adoptErr := s.payments.GetByExternalReferenceTx(ctx, tx, upd.ExternalReference); adoptErr == nil {
				if err := s.payments.AttachGatewayTx(ctx, tx, adopted.ID, upd.GatewayID, adopted.Status); err != nil {
					return nil, err
				}
				adopted.GatewayID = upd.GatewayID
				return s.applyToStored(ctx, tx, adopted, upd)
			} else if !errors.Is(adoptErr, domain.ErrPaymentNotFound) {
				return nil, adoptErr
			}
		}

		now := time.Now()
		payment := &domain.Payment{
			ID:                uuid.NewString(),
			GatewayID:         upd.GatewayID,
			ExternalReference: upd.ExternalReference,
			Amount:            upd.Amount,
			PaymentMethod:     upd.PaymentMethod,
			Status:            upd.Status,
			PayerName:         upd.PayerName,
			PayerEmail:        upd.PayerEmail,
			PayerCPF:          upd.PayerCPF,
			Description:       upd.Description,
			StatusDetail:      upd.StatusDetail,
			RejectionReason:   upd.RejectionReason,
			GatewayUpdatedAt:  upd.GatewayUpdatedAt,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.payments.CreateTx(ctx, tx, payment); err != nil {
			return nil, err
		}
		if err := s.enqueueStatusEvent(ctx, tx, payment, ""); err != nil {
			return nil, err
		}
		return &ApplyResult{Payment: payment, Applied: true, Created: true}, nil
	}

	return s.applyToStored(ctx, tx, stored, upd)
}

func (s *Store) applyToStored(ctx context.Context, tx *sql.Tx, stored *domain.Payment, upd GatewayUpdate) (*ApplyResult, error) {
	result := &ApplyResult{
		Payment:     stored,
		WasApproved: stored.Status == domain.PaymentStatusApproved,
	}

	if isStale(stored, upd) {
		s.logger.Warn("Ignoring stale gateway update",
			zap.String("gateway_id", upd.GatewayID),
			zap.String("stored_status", string(stored.Status)),
			zap.String("incoming_status", string(upd.Status)))
		return result, nil
	}

	if err := s.payments.UpdateFromGatewayTx(ctx, tx, payments_repo.GatewayFields{
		GatewayID:        upd.GatewayID,
		Status:           upd.Status,
		StatusDetail:     upd.StatusDetail,
		RejectionReason:  upd.RejectionReason,
		GatewayUpdatedAt: upd.GatewayUpdatedAt,
	}); err != nil {
		return nil, err
	}

	previous := stored.Status
	updated := *stored
	updated.Status = upd.Status
	updated.StatusDetail = upd.StatusDetail
	updated.RejectionReason = upd.RejectionReason
	updated.GatewayUpdatedAt = upd.GatewayUpdatedAt
	updated.UpdatedAt = time.Now()

	result.Payment = &updated
	result.Applied = true

	if previous != upd.Status {
		if err := s.enqueueStatusEvent(ctx, tx, &updated, string(previous)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// isStale applies the ordering guard from the gateway's own clock: a
// strictly older date_last_updated loses, and without comparable timestamps
// a terminal status is never demoted to a non-terminal one.
func isStale(stored *domain.Payment, upd GatewayUpdate) bool {
	if stored.GatewayUpdatedAt != nil && upd.GatewayUpdatedAt != nil {
		return upd.GatewayUpdatedAt.Before(*stored.GatewayUpdatedAt)
	}
	return stored.Status.IsTerminal() && !upd.Status.IsTerminal()
}

type paymentStatusEvent struct {
	PaymentID         string    `json:"payment_id"`
	GatewayID         string    `json:"gateway_id"`
	ExternalReference string    `json:"external_reference"`
	Amount            float64   `json:"amount"`
	Status            string    `json:"status"`
	PreviousStatus    string    `json:"previous_status,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

func (s *Store) enqueueStatusEvent(ctx context.Context, tx *sql.Tx, payment *domain.Payment, previous string) error {
	payload, err := json.Marshal(paymentStatusEvent{
		PaymentID:         payment.ID,
		GatewayID:         payment.GatewayID,
		ExternalReference: payment.ExternalReference,
		Amount:            payment.Amount,
		Status:            string(payment.Status),
		PreviousStatus:    previous,
		Timestamp:         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payment status event: %w", err)
	}

	msg := &domain.OutboxMessage{
		ID:        uuid.NewString(),
		PaymentID: payment.ID,
		EventType: "payment.status_changed",
		Payload:   payload,
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.outbox.CreateMessageTx(ctx, tx, msg); err != nil {
		return fmt.Errorf("failed to enqueue payment status event: %w", err)
	}
	return nil
}

func (s *Store) LogWebhookEvent(ctx context.Context, paymentID, eventType string, payload []byte) (string, error) {
	event := &domain.WebhookEvent{
		ID:        uuid.NewString(),
		PaymentID: paymentID,
		EventType: eventType,
		Payload:   string(payload),
		Processed: false,
		CreatedAt: time.Now(),
	}
	if err := s.webhooks.CreateTx(ctx, s.db, event); err != nil {
		return "", &domain.StoreError{Op: "log webhook event", Err: err}
	}
	return event.ID, nil
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, eventID, processingError string) error {
	if err := s.webhooks.MarkProcessedTx(ctx, s.db, eventID, processingError); err != nil {
		return &domain.StoreError{Op: "mark webhook processed", Err: err}
	}
	return nil
}
