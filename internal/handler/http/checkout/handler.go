package checkout_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"checkout/internal/app/checkout"
	"checkout/internal/domain"
	"checkout/internal/repository/payments_repo"
)

type CheckoutHandler struct {
	service *checkout.Service
	logger  *zap.Logger
}

func NewCheckoutHandler(s *checkout.Service, l *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: s, logger: l}
}

type PixPaymentResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	QRCode            string `json:"qr_code,omitempty"`
	QRCodeBase64      string `json:"qr_code_base64,omitempty"`
	ExternalReference string `json:"external_reference"`
}

type PaymentResponse struct {
	ID                string   `json:"id"`
	GatewayID         string   `json:"gateway_id"`
	ExternalReference string   `json:"external_reference"`
	Amount            float64  `json:"amount"`
	PaymentMethod     string   `json:"payment_method"`
	Status            string   `json:"status"`
	PayerName         string   `json:"payer_name,omitempty"`
	PayerEmail        string   `json:"payer_email,omitempty"`
	Description       string   `json:"description,omitempty"`
	StatusDetail      string   `json:"status_detail,omitempty"`
	RejectionReason   string   `json:"rejection_reason,omitempty"`
	GatewayUpdatedAt  *string  `json:"gateway_updated_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

func paymentResponse(p domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                p.ID,
		GatewayID:         p.GatewayID,
		ExternalReference: p.ExternalReference,
		Amount:            p.Amount,
		PaymentMethod:     p.PaymentMethod,
		Status:            string(p.Status),
		PayerName:         p.PayerName,
		PayerEmail:        p.PayerEmail,
		Description:       p.Description,
		StatusDetail:      p.StatusDetail,
		RejectionReason:   p.RejectionReason,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	}
	if p.GatewayUpdatedAt != nil {
		s := p.GatewayUpdatedAt.Format(time.RFC3339)
		resp.GatewayUpdatedAt = &s
	}
	return resp
}

func (h *CheckoutHandler) CreatePixPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req checkout.PixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid PIX request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Todos os campos são obrigatórios", "")
		return
	}

	result, err := h.service.CreatePixPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create PIX payment")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"success":   true,
		"persisted": result.Persisted,
		"data": PixPaymentResponse{
			ID:                result.Payment.ID,
			Status:            result.Payment.Status,
			QRCode:            result.Payment.QRCode,
			QRCodeBase64:      result.Payment.QRCodeBase64,
			ExternalReference: result.Payment.ExternalReference,
		},
	})
}

// CreateCardPaymentHandler passes the gateway's payment object through
// untouched, adding only the local persistence flag.
func (h *CheckoutHandler) CreateCardPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req checkout.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid card request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Todos os campos são obrigatórios", "")
		return
	}

	result, err := h.service.CreateCardPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create card payment")
		return
	}

	var body map[string]any
	if err := json.Unmarshal(result.Details.Raw, &body); err != nil || body == nil {
		body = map[string]any{
			"id":     result.Details.ID.String(),
			"status": result.Details.Status,
		}
	}
	body["persisted"] = result.Persisted
	writeJSON(w, h.logger, http.StatusOK, body)
}

// PaymentStatusHandler accepts the payment id as ?paymentId=, ?id= or a JSON
// body {"paymentId": ...}; the storefront uses whichever is convenient.
func (h *CheckoutHandler) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("paymentId")
	if paymentID == "" {
		paymentID = r.URL.Query().Get("id")
	}
	if paymentID == "" && r.Method == http.MethodPost {
		var body struct {
			PaymentID string `json:"paymentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			paymentID = body.PaymentID
		}
	}
	if paymentID == "" {
		writeError(w, http.StatusBadRequest, "ID do pagamento é obrigatório", "")
		return
	}

	result, err := h.service.PaymentStatus(r.Context(), paymentID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to query payment status")
		return
	}

	resp := map[string]any{
		"success":   true,
		"paymentId": paymentID,
		"status":    string(result.Status),
		"details":   json.RawMessage(result.Details.Raw),
	}
	if result.RejectionInfo != nil {
		resp["rejection_info"] = result.RejectionInfo
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *CheckoutHandler) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payments_repo.ListFilter{
		Status: q.Get("status"),
		Email:  q.Get("email"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	payments, total, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list payments")
		return
	}

	data := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		data = append(data, paymentResponse(p))
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	totalPages := (total + filter.Limit - 1) / filter.Limit

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
		"pagination": map[string]any{
			"page":        filter.Page,
			"limit":       filter.Limit,
			"total":       total,
			"total_pages": totalPages,
			"has_next":    filter.Page < totalPages,
			"has_prev":    filter.Page > 1,
		},
	})
}

type RecentPaymentResponse struct {
	PaymentResponse
	WebhookCount int                  `json:"webhook_count"`
	LastWebhook  *WebhookEventSummary `json:"last_webhook,omitempty"`
}

type WebhookEventSummary struct {
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	CreatedAt string `json:"created_at"`
}

func (h *CheckoutHandler) RecentPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recent, total, err := h.service.RecentPayments(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list recent payments")
		return
	}

	data := make([]RecentPaymentResponse, 0, len(recent))
	for _, rp := range recent {
		item := RecentPaymentResponse{
			PaymentResponse: paymentResponse(rp.Payment),
			WebhookCount:    rp.WebhookCount,
		}
		if rp.LastWebhook != nil {
			item.LastWebhook = &WebhookEventSummary{
				EventType: rp.LastWebhook.EventType,
				Processed: rp.LastWebhook.Processed,
				CreatedAt: rp.LastWebhook.CreatedAt.Format(time.RFC3339),
			}
		}
		data = append(data, item)
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
		"total":   total,
	})
}

func (h *CheckoutHandler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message(), "")
		return
	}
	if errors.Is(err, domain.ErrPaymentNotFound) {
		writeError(w, http.StatusNotFound, "Pagamento não encontrado", "")
		return
	}

	h.logger.Error(logMsg, zap.Error(err))
	details := "Erro desconhecido"
	if err != nil {
		details = err.Error()
	}
	writeError(w, http.StatusInternalServerError, "Erro interno do servidor", details)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	body := map[string]any{"error": message}
	if details != "" {
		body["details"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
