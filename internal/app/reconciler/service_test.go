package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkout/internal/classify"
	"checkout/internal/domain"
	"checkout/internal/gateway"
	"checkout/internal/mailer"
	"checkout/internal/repository/payments_repo"
	"checkout/internal/store"
)

type fakeStore struct {
	payments map[string]*domain.Payment
	applyErr error
	applied  []store.GatewayUpdate
	logged   []string
	marked   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{payments: make(map[string]*domain.Payment)}
}

func (f *fakeStore) CreatePayment(_ context.Context, p *domain.Payment) error {
	f.payments[p.GatewayID] = p
	return nil
}

func (f *fakeStore) AttachGatewayPayment(_ context.Context, _, _ string, _ domain.PaymentStatus) error {
	return nil
}

func (f *fakeStore) GetByGatewayID(_ context.Context, gatewayID string) (*domain.Payment, error) {
	p, ok := f.payments[gatewayID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakeStore) GetByExternalReference(_ context.Context, _ string) (*domain.Payment, error) {
	return nil, domain.ErrPaymentNotFound
}

func (f *fakeStore) List(_ context.Context, _ payments_repo.ListFilter) ([]domain.Payment, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) Recent(_ context.Context, _ int) ([]store.RecentPayment, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) ApplyGatewayUpdate(_ context.Context, upd store.GatewayUpdate) (*store.ApplyResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, upd)

	stored, ok := f.payments[upd.GatewayID]
	if !ok {
		p := &domain.Payment{
			ID:                "local-" + upd.GatewayID,
			GatewayID:         upd.GatewayID,
			ExternalReference: upd.ExternalReference,
			Amount:            upd.Amount,
			Status:            upd.Status,
			StatusDetail:      upd.StatusDetail,
			RejectionReason:   upd.RejectionReason,
			GatewayUpdatedAt:  upd.GatewayUpdatedAt,
		}
		f.payments[upd.GatewayID] = p
		return &store.ApplyResult{Payment: p, Applied: true, Created: true}, nil
	}

	result := &store.ApplyResult{
		Payment:     stored,
		WasApproved: stored.Status == domain.PaymentStatusApproved,
	}
	if stored.GatewayUpdatedAt != nil && upd.GatewayUpdatedAt != nil &&
		upd.GatewayUpdatedAt.Before(*stored.GatewayUpdatedAt) {
		return result, nil
	}

	stored.Status = upd.Status
	stored.StatusDetail = upd.StatusDetail
	stored.RejectionReason = upd.RejectionReason
	stored.GatewayUpdatedAt = upd.GatewayUpdatedAt
	result.Applied = true
	return result, nil
}

func (f *fakeStore) LogWebhookEvent(_ context.Context, paymentID, eventType string, _ []byte) (string, error) {
	f.logged = append(f.logged, eventType)
	return fmt.Sprintf("evt-%d", len(f.logged)), nil
}

func (f *fakeStore) MarkWebhookProcessed(_ context.Context, _, processingError string) error {
	f.marked = append(f.marked, processingError)
	return nil
}

type fakeGateway struct {
	failures int
	details  *gateway.PaymentDetails
	calls    int
}

func (f *fakeGateway) GetPaymentDetails(_ context.Context, _ string) (*gateway.PaymentDetails, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &domain.GatewayError{Op: "get payment details", Err: errors.New("gateway unavailable")}
	}
	if f.details == nil {
		return nil, &domain.GatewayError{Op: "get payment details", Err: errors.New("gateway unavailable")}
	}
	return f.details, nil
}

type fakeNotifier struct {
	sent []mailer.Confirmation
	err  error
}

func (f *fakeNotifier) SendPaymentConfirmation(_ context.Context, c mailer.Confirmation) error {
	f.sent = append(f.sent, c)
	return f.err
}

func newTestService(st store.PaymentStore, gw GatewayClient, nt Notifier) *Service {
	return NewService(st, gw, nt, Config{
		Backoff: func(int) time.Duration { return 0 },
	}, zap.NewNop())
}

func approvedDetails(id, ref, email string, amount float64, updated time.Time) *gateway.PaymentDetails {
	return &gateway.PaymentDetails{
		ID:                json.Number(id),
		Status:            "approved",
		ExternalReference: ref,
		TransactionAmount: amount,
		PaymentMethodID:   "pix",
		DateLastUpdated:   &updated,
		Metadata:          gateway.Metadata{"buyer_email": email},
	}
}

func TestProcessAcknowledgesNonPaymentEvents(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(st, gw, &fakeNotifier{})

	res := svc.Process(context.Background(), Notification{Type: "merchant_order"})

	require.True(t, res.Success)
	require.Equal(t, "Webhook recebido (não é notificação de pagamento)", res.Message)
	require.Zero(t, gw.calls)
	require.Empty(t, st.logged)
}

func TestProcessRejectsPaymentEventWithoutID(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{}, &fakeNotifier{})

	res := svc.Process(context.Background(), Notification{Type: "payment"})

	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}

func TestProcessRetriesGatewayFetch(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{
		failures: 2,
		details:  approvedDetails("111", "order_1", "a@b.com", 2.00, time.Now()),
	}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	res := svc.Process(context.Background(), Notification{Type: "payment", PaymentID: "111"})

	require.Equal(t, 3, gw.calls)
	require.True(t, res.Success)
	require.Equal(t, "approved", res.Status)
	require.Equal(t, "order_1", res.ExternalReference)
	require.Len(t, nt.sent, 1)
}

func TestProcessGivesUpAfterThreeFetchFailures(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{failures: 3}
	svc := newTestService(st, gw, &fakeNotifier{})

	res := svc.Process(context.Background(), Notification{Type: "payment", PaymentID: "111"})

	require.Equal(t, 3, gw.calls)
	require.False(t, res.Success)
	require.Equal(t, "Erro ao processar pagamento", res.Error)
	require.Empty(t, st.applied)
}

func TestProcessSendsConfirmationOncePerApproval(t *testing.T) {
	st := newFakeStore()
	updated := time.Now()
	gw := &fakeGateway{details: approvedDetails("222", "order_2", "a@b.com", 10.50, updated)}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	n := Notification{Type: "payment", PaymentID: "222"}
	res1 := svc.Process(context.Background(), n)
	res2 := svc.Process(context.Background(), n)

	require.True(t, res1.Success)
	require.True(t, res2.Success)
	require.Len(t, nt.sent, 1, "duplicate approved notification must not send a second email")
	require.Equal(t, "a@b.com", nt.sent[0].To)
	require.Equal(t, "order_2", nt.sent[0].OrderID)
	require.InDelta(t, 10.50, nt.sent[0].Amount, 0.001)
}

func TestProcessIgnoresStaleUpdate(t *testing.T) {
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	st := newFakeStore()
	st.payments["333"] = &domain.Payment{
		ID:               "local-333",
		GatewayID:        "333",
		Status:           domain.PaymentStatusApproved,
		GatewayUpdatedAt: &t2,
	}

	stale := approvedDetails("333", "order_3", "a@b.com", 5, t1)
	stale.Status = "pending"
	gw := &fakeGateway{details: stale}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	res := svc.Process(context.Background(), Notification{Type: "payment", PaymentID: "333"})

	require.True(t, res.Success)
	require.Equal(t, domain.PaymentStatusApproved, st.payments["333"].Status, "stale PENDING must not overwrite APPROVED")
	require.Empty(t, nt.sent)
}

func TestProcessClassifiesRejection(t *testing.T) {
	st := newFakeStore()
	updated := time.Now()
	gw := &fakeGateway{details: &gateway.PaymentDetails{
		ID:              json.Number("444"),
		Status:          "rejected",
		StatusDetail:    "cc_rejected_insufficient_amount",
		DateLastUpdated: &updated,
	}}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	res := svc.Process(context.Background(), Notification{Type: "payment", PaymentID: "444"})

	require.True(t, res.Success)
	require.Equal(t, "rejected", res.Status)
	require.NotNil(t, res.RejectionInfo)
	require.Equal(t, classify.TypeInsufficientAmount, res.RejectionInfo.Type)
	require.Equal(t, "Quantia insuficiente", res.RejectionInfo.Reason)
	require.Empty(t, nt.sent)
}

func TestProcessRecordsAuditTrail(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{details: approvedDetails("555", "order_5", "a@b.com", 1, time.Now())}
	svc := newTestService(st, gw, &fakeNotifier{})

	body := []byte(`{"type":"payment","action":"payment.updated","data":{"id":555}}`)
	n := ParseNotification(body, url.Values{})
	res := svc.Process(context.Background(), n)

	require.True(t, res.Success)
	require.Equal(t, []string{"payment.updated"}, st.logged)
	require.Equal(t, []string{""}, st.marked)
}

func TestProcessRecordsAuditWhenStoreUpdateFails(t *testing.T) {
	st := newFakeStore()
	st.payments["777"] = &domain.Payment{
		ID:        "local-777",
		GatewayID: "777",
		Status:    domain.PaymentStatusPending,
	}
	st.applyErr = errors.New("db down")
	gw := &fakeGateway{details: approvedDetails("777", "order_7", "a@b.com", 4, time.Now())}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	res := svc.Process(context.Background(), Notification{Type: "payment", Action: "payment.updated", PaymentID: "777"})

	require.False(t, res.Success)
	require.Equal(t, "Erro ao processar pagamento", res.Error)
	require.Equal(t, []string{"payment.updated"}, st.logged, "failed deliveries must still leave an audit row")
	require.Len(t, st.marked, 1)
	require.Contains(t, st.marked[0], "db down")
	require.Empty(t, nt.sent)
}

func TestProcessApprovedPaymentEndToEnd(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{details: &gateway.PaymentDetails{
		ID:                json.Number("999"),
		Status:            "approved",
		ExternalReference: "order_1",
		TransactionAmount: 2.00,
		Payer:             &gateway.Payer{Email: "a@b.com"},
	}}
	nt := &fakeNotifier{}
	svc := newTestService(st, gw, nt)

	n := ParseNotification([]byte(`{"type":"payment","data":{"id":"999"}}`), url.Values{})
	res := svc.Process(context.Background(), n)

	require.True(t, res.Success)
	require.Equal(t, "999", res.PaymentID)
	require.Equal(t, "approved", res.Status)
	require.Equal(t, "order_1", res.ExternalReference)
	require.NotEmpty(t, res.ProcessedAt)

	require.Equal(t, domain.PaymentStatusApproved, st.payments["999"].Status)
	require.Len(t, nt.sent, 1)
	require.Equal(t, "a@b.com", nt.sent[0].To)
	require.Equal(t, "order_1", nt.sent[0].OrderID)
	require.InDelta(t, 2.00, nt.sent[0].Amount, 0.001)
}

func TestProcessSurvivesNotifierFailure(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{details: approvedDetails("666", "order_6", "a@b.com", 3, time.Now())}
	nt := &fakeNotifier{err: errors.New("smtp down")}
	svc := newTestService(st, gw, nt)

	res := svc.Process(context.Background(), Notification{Type: "payment", PaymentID: "666"})

	require.True(t, res.Success, "a mail failure must not fail the webhook")
	require.Equal(t, []string{"smtp down"}, st.marked)
}
