// Package reconciler turns gateway webhook notifications into verified local
// state. A notification is only a hint: the service re-fetches the payment
// from the gateway and reconciles the local record against that fetch.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout/internal/classify"
	"checkout/internal/domain"
	"checkout/internal/gateway"
	"checkout/internal/mailer"
	"checkout/internal/retry"
	"checkout/internal/store"
)

const (
	defaultFetchAttempts = 3
	defaultBackoffStep   = 350 * time.Millisecond
	defaultMailTimeout   = 10 * time.Second
)

// GatewayClient is the slice of the gateway API the reconciler needs.
type GatewayClient interface {
	GetPaymentDetails(ctx context.Context, paymentID string) (*gateway.PaymentDetails, error)
}

// Notifier sends the buyer-facing confirmation message.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, c mailer.Confirmation) error
}

// Config tunes the fetch retry schedule and the notification deadline. Zero
// values fall back to the production defaults.
type Config struct {
	FetchAttempts int
	Backoff       retry.BackoffFunc
	MailTimeout   time.Duration
}

// Result is the body returned to the gateway for every delivery. The HTTP
// status is always 200; Success carries the real outcome so the gateway does
// not hammer the endpoint with redeliveries of notifications that can never
// be processed.
type Result struct {
	Success           bool                     `json:"success"`
	Message           string                   `json:"message,omitempty"`
	Error             string                   `json:"error,omitempty"`
	PaymentID         string                   `json:"paymentId,omitempty"`
	Status            string                   `json:"status,omitempty"`
	ExternalReference string                   `json:"external_reference,omitempty"`
	ProcessedAt       string                   `json:"processed_at,omitempty"`
	RejectionInfo     *classify.Classification `json:"rejection_info,omitempty"`
}

type Service struct {
	store    store.PaymentStore
	gateway  GatewayClient
	notifier Notifier

	fetchAttempts int
	backoff       retry.BackoffFunc
	mailTimeout   time.Duration

	logger *zap.Logger
}

func NewService(st store.PaymentStore, gw GatewayClient, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = defaultFetchAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.Linear(defaultBackoffStep)
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = defaultMailTimeout
	}
	return &Service{
		store:         st,
		gateway:       gw,
		notifier:      notifier,
		fetchAttempts: cfg.FetchAttempts,
		backoff:       cfg.Backoff,
		mailTimeout:   cfg.MailTimeout,
		logger:        logger.With(zap.String("component", "reconciler")),
	}
}

// Process handles one webhook delivery end to end: identify the payment,
// fetch its authoritative state from the gateway, apply it under the
// ordering guard, classify rejections and send the confirmation email on the
// first transition to APPROVED.
func (s *Service) Process(ctx context.Context, n Notification) Result {
	if !n.IsPaymentEvent() {
		s.logger.Info("Ignoring non-payment notification", zap.String("type", n.Type))
		return Result{Success: true, Message: "Webhook recebido (não é notificação de pagamento)"}
	}

	if n.PaymentID == "" {
		s.logger.Warn("Payment notification without a payment id", zap.String("type", n.Type), zap.String("action", n.Action))
		return Result{Success: false, Error: "Notificação de pagamento sem identificador"}
	}

	logger := s.logger.With(zap.String("gateway_id", n.PaymentID))

	details, err := retry.Do(ctx, s.fetchAttempts, s.backoff, func(ctx context.Context) (*gateway.PaymentDetails, error) {
		return s.gateway.GetPaymentDetails(ctx, n.PaymentID)
	})
	if err != nil {
		logger.Error("Failed to fetch payment from gateway", zap.Int("attempts", s.fetchAttempts), zap.Error(err))
		s.auditByGatewayID(ctx, n, err)
		return Result{Success: false, Error: "Erro ao processar pagamento", PaymentID: n.PaymentID}
	}

	status := domain.NormalizeStatus(details.Status)
	result, err := s.store.ApplyGatewayUpdate(ctx, gatewayUpdateFrom(details, status))
	if err != nil {
		logger.Error("Failed to apply gateway update", zap.Error(err))
		s.auditByGatewayID(ctx, n, err)
		return Result{Success: false, Error: "Erro ao processar pagamento", PaymentID: n.PaymentID}
	}
	payment := result.Payment

	logger = logger.With(zap.String("payment_id", payment.ID), zap.String("status", string(status)))
	if !result.Applied {
		logger.Info("Gateway update discarded as stale")
	}

	// The response echoes the gateway's own view of the payment, not the
	// (potentially stale-guarded) stored row.
	out := Result{
		Success:           true,
		Message:           "Webhook processado com sucesso",
		PaymentID:         n.PaymentID,
		Status:            details.Status,
		ExternalReference: payment.ExternalReference,
		ProcessedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if status == domain.PaymentStatusRejected {
		c := classify.Classify(details.StatusDetail, details.RejectionReason)
		out.RejectionInfo = &c
	}

	var notifyErr error
	if result.Applied && payment.Status == domain.PaymentStatusApproved && !result.WasApproved {
		notifyErr = s.sendConfirmation(ctx, payment, details, logger)
	}

	s.audit(ctx, payment.ID, n, notifyErr)
	return out
}

func gatewayUpdateFrom(details *gateway.PaymentDetails, status domain.PaymentStatus) store.GatewayUpdate {
	email, _ := details.BuyerEmail()
	return store.GatewayUpdate{
		GatewayID:         details.ID.String(),
		Status:            status,
		StatusDetail:      details.StatusDetail,
		RejectionReason:   details.RejectionReason,
		GatewayUpdatedAt:  details.DateLastUpdated,
		ExternalReference: details.OrderReference(),
		Amount:            details.TransactionAmount,
		PaymentMethod:     details.PaymentMethodID,
		PayerName:         details.PayerDisplayName(),
		PayerEmail:        email,
		PayerCPF:          details.PayerDocument(),
		Description:       details.Description,
	}
}

func (s *Service) sendConfirmation(ctx context.Context, payment *domain.Payment, details *gateway.PaymentDetails, logger *zap.Logger) error {
	email, ok := details.BuyerEmail()
	if !ok {
		logger.Warn("Approved payment has no buyer email, skipping confirmation")
		return nil
	}

	gatewayItems := details.MailItems()
	items := make([]mailer.Item, 0, len(gatewayItems))
	for _, it := range gatewayItems {
		items = append(items, mailer.Item{Title: it.Title, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	mailCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	err := s.notifier.SendPaymentConfirmation(mailCtx, mailer.Confirmation{
		To:      email,
		Name:    details.PayerDisplayName(),
		OrderID: payment.ExternalReference,
		Amount:  payment.Amount,
		Items:   items,
	})
	if err != nil {
		// The payment state is already committed; a mail failure must not
		// fail the webhook.
		logger.Error("Failed to send confirmation email", zap.String("to", email), zap.Error(err))
		return err
	}
	logger.Info("Confirmation email sent", zap.String("to", email))
	return nil
}

// audit records the delivery against the payment. Audit failures are logged
// and swallowed: losing an audit row is better than telling the gateway a
// processed notification failed.
func (s *Service) audit(ctx context.Context, paymentID string, n Notification, processErr error) {
	eventType := n.Action
	if eventType == "" {
		eventType = n.Type
	}
	eventID, err := s.store.LogWebhookEvent(ctx, paymentID, eventType, n.Raw)
	if err != nil {
		s.logger.Error("Failed to log webhook event", zap.String("payment_id", paymentID), zap.Error(err))
		return
	}
	errMsg := ""
	if processErr != nil {
		errMsg = processErr.Error()
	}
	if err := s.store.MarkWebhookProcessed(ctx, eventID, errMsg); err != nil {
		s.logger.Error("Failed to mark webhook event processed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// auditByGatewayID records a failed delivery against the payment the
// notification points at. The payment may be unknown locally; in that case
// there is no row to attach the audit entry to.
func (s *Service) auditByGatewayID(ctx context.Context, n Notification, processErr error) {
	payment, err := s.store.GetByGatewayID(ctx, n.PaymentID)
	if err != nil {
		return
	}
	s.audit(ctx, payment.ID, n, processErr)
}
