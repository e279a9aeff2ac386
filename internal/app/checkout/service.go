// Package checkout implements the storefront-facing payment operations:
// creating PIX and card payments and answering status queries.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout/internal/classify"
	"checkout/internal/domain"
	"checkout/internal/gateway"
	"checkout/internal/repository/payments_repo"
	"checkout/internal/store"
)

// GatewayClient is the slice of the gateway API checkout needs.
type GatewayClient interface {
	CreatePixPayment(ctx context.Context, buyer gateway.Buyer, amount float64, description, externalReference string) (*gateway.PixPayment, error)
	CreateCardPayment(ctx context.Context, req gateway.CardPaymentRequest) (*gateway.PaymentDetails, error)
	GetPaymentDetails(ctx context.Context, paymentID string) (*gateway.PaymentDetails, error)
}

type Service struct {
	store    store.PaymentStore
	gateway  GatewayClient
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(st store.PaymentStore, gw GatewayClient, logger *zap.Logger) *Service {
	return &Service{
		store:    st,
		gateway:  gw,
		validate: newValidator(),
		logger:   logger.With(zap.String("component", "checkout")),
	}
}

type PixRequest struct {
	Name        string  `json:"name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	CPF         string  `json:"cpf" validate:"required,cpf"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description"`
}

// PixResult carries the gateway response plus whether the local record made
// it to the database. Persisted=false means the buyer can still pay the QR
// code; the record is recovered later from the webhook upsert.
type PixResult struct {
	Payment   *gateway.PixPayment
	Persisted bool
}

// CreatePixPayment validates the buyer data, records a PENDING payment and
// asks the gateway for the QR code. The local row is written before the
// gateway call so a crash between the two leaves a traceable record.
func (s *Service) CreatePixPayment(ctx context.Context, req PixRequest) (*PixResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	if req.Description == "" {
		req.Description = fmt.Sprintf("Pagamento PIX - %s", req.Name)
	}
	externalReference := newExternalReference()

	payment := &domain.Payment{
		ID:                uuid.NewString(),
		GatewayID:         "pending_" + uuid.NewString(),
		ExternalReference: externalReference,
		Amount:            req.Amount,
		PaymentMethod:     "pix",
		Status:            domain.PaymentStatusPending,
		PayerName:         req.Name,
		PayerEmail:        req.Email,
		PayerCPF:          req.CPF,
		Description:       req.Description,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	pix, err := s.gateway.CreatePixPayment(ctx, gateway.Buyer{
		Name:  req.Name,
		Email: req.Email,
		CPF:   req.CPF,
	}, req.Amount, req.Description, externalReference)
	if err != nil {
		return nil, err
	}

	result := &PixResult{Payment: pix, Persisted: true}
	if err := s.store.AttachGatewayPayment(ctx, payment.ID, pix.ID, domain.NormalizeStatus(pix.Status)); err != nil {
		// The gateway payment exists; report it so the buyer can pay, and let
		// the webhook flow repair the local record.
		s.logger.Error("Failed to attach gateway payment",
			zap.String("payment_id", payment.ID), zap.String("gateway_id", pix.ID), zap.Error(err))
		result.Persisted = false
	}
	return result, nil
}

type CardRequest struct {
	Token             string         `json:"token" validate:"required"`
	IssuerID          string         `json:"issuer_id"`
	PaymentMethodID   string         `json:"payment_method_id" validate:"required"`
	Installments      int            `json:"installments"`
	Amount            float64        `json:"amount" validate:"required,gt=0"`
	Description       string         `json:"description"`
	ExternalReference string         `json:"external_reference"`
	Payer             *gateway.Payer `json:"payer"`
}

type CardResult struct {
	Details   *gateway.PaymentDetails
	Persisted bool
}

// CreateCardPayment forwards a tokenized card charge to the gateway and
// records it locally. The raw gateway object is passed through so the
// storefront's card brick can read whatever fields it needs.
func (s *Service) CreateCardPayment(ctx context.Context, req CardRequest) (*CardResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.Installments <= 0 {
		req.Installments = 1
	}
	if req.ExternalReference == "" {
		req.ExternalReference = newExternalReference()
	}

	gwReq := gateway.CardPaymentRequest{
		Token:             req.Token,
		IssuerID:          req.IssuerID,
		PaymentMethodID:   req.PaymentMethodID,
		Installments:      req.Installments,
		Amount:            req.Amount,
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
	}
	if req.Payer != nil {
		gwReq.Payer = *req.Payer
	}

	details, err := s.gateway.CreateCardPayment(ctx, gwReq)
	if err != nil {
		return nil, err
	}

	email, _ := details.BuyerEmail()
	payment := &domain.Payment{
		ID:                uuid.NewString(),
		GatewayID:         details.ID.String(),
		ExternalReference: req.ExternalReference,
		Amount:            req.Amount,
		PaymentMethod:     details.PaymentMethodID,
		Status:            domain.NormalizeStatus(details.Status),
		PayerName:         details.PayerDisplayName(),
		PayerEmail:        email,
		PayerCPF:          details.PayerDocument(),
		Description:       req.Description,
		StatusDetail:      details.StatusDetail,
		RejectionReason:   details.RejectionReason,
		GatewayUpdatedAt:  details.DateLastUpdated,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	result := &CardResult{Details: details, Persisted: true}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to persist card payment",
			zap.String("gateway_id", payment.GatewayID), zap.Error(err))
		result.Persisted = false
	}
	return result, nil
}

type StatusResult struct {
	Status        domain.PaymentStatus
	Details       *gateway.PaymentDetails
	RejectionInfo *classify.Classification
}

// PaymentStatus answers a storefront poll with the gateway's current view
// and refreshes the local record under the same ordering guard the webhook
// flow uses.
func (s *Service) PaymentStatus(ctx context.Context, paymentID string) (*StatusResult, error) {
	if paymentID == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"paymentId": "ID do pagamento é obrigatório"}}
	}

	details, err := s.gateway.GetPaymentDetails(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	status := domain.NormalizeStatus(details.Status)
	applied, err := s.store.ApplyGatewayUpdate(ctx, store.GatewayUpdate{
		GatewayID:         details.ID.String(),
		Status:            status,
		StatusDetail:      details.StatusDetail,
		RejectionReason:   details.RejectionReason,
		GatewayUpdatedAt:  details.DateLastUpdated,
		ExternalReference: details.OrderReference(),
		Amount:            details.TransactionAmount,
		PaymentMethod:     details.PaymentMethodID,
		Description:       details.Description,
	})
	if err != nil {
		// The gateway answer is still valid for the caller.
		s.logger.Error("Failed to refresh local payment from status query",
			zap.String("gateway_id", paymentID), zap.Error(err))
	} else if !applied.Applied {
		status = applied.Payment.Status
	}

	result := &StatusResult{Status: status, Details: details}
	if status == domain.PaymentStatusRejected {
		c := classify.Classify(details.StatusDetail, details.RejectionReason)
		result.RejectionInfo = &c
	}
	return result, nil
}

func (s *Service) ListPayments(ctx context.Context, filter payments_repo.ListFilter) ([]domain.Payment, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.store.List(ctx, filter)
}

func (s *Service) RecentPayments(ctx context.Context, limit int) ([]store.RecentPayment, int, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.store.Recent(ctx, limit)
}

func newExternalReference() string {
	return fmt.Sprintf("order_%d", time.Now().UnixMilli())
}
