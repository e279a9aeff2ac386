package webhook_http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkout/internal/app/reconciler"
)

func newTestRouter() chi.Router {
	r := chi.NewRouter()
	svc := reconciler.NewService(nil, nil, nil, reconciler.Config{}, zap.NewNop())
	RegisterRoutes(r, svc, zap.NewNop())
	return r
}

func TestReceiveAcknowledgesNonPaymentNotification(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"type":"merchant_order"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body reconciler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "Webhook recebido (não é notificação de pagamento)", body.Message)
}

func TestReceiveAlwaysReturns200(t *testing.T) {
	r := newTestRouter()

	// Payment event with no payment id cannot be processed, but the gateway
	// still gets a 200 so it stops redelivering.
	req := httptest.NewRequest(http.MethodPost, "/api/webhook?type=payment", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body reconciler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotEmpty(t, body.Error)
}

func TestWebhookHealth(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/webhook", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, body["timestamp"])
}
