package webhook_http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"checkout/internal/app/reconciler"
)

// maxBodySize bounds webhook payloads; gateway notifications are small.
const maxBodySize = 1 << 20

type WebhookHandler struct {
	reconciler *reconciler.Service
	logger     *zap.Logger
}

func NewWebhookHandler(s *reconciler.Service, l *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: s, logger: l}
}

// ReceiveHandler always answers 200. A non-200 only makes the gateway
// redeliver, and a notification that cannot be processed now will not
// process better on the fifth retry; the success flag in the body carries
// the real outcome.
func (h *WebhookHandler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		body = nil
	}

	n := reconciler.ParseNotification(body, r.URL.Query())
	result := h.reconciler.Process(r.Context(), n)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("Failed to write webhook response", zap.Error(err))
	}
}

func (h *WebhookHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"message":   "Webhook endpoint está funcionando",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func RegisterRoutes(r chi.Router, s *reconciler.Service, l *zap.Logger) {
	handler := NewWebhookHandler(s, l.With(zap.String("component", "WebhookHTTPHandler")))

	r.Post("/api/webhook", handler.ReceiveHandler)
	r.Get("/api/webhook", handler.HealthHandler)
}
