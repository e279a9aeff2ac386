package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkout/internal/domain"
)

// Client talks to the Mercado Pago payments API. It holds no state beyond
// the credential.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	notifyURL   string
}

func NewClient(baseURL, accessToken, notifyURL string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		notifyURL:   notifyURL,
	}
}

type Buyer struct {
	Name  string
	Email string
	CPF   string
}

type PixPayment struct {
	ID                string
	Status            string
	QRCode            string
	QRCodeBase64      string
	ExternalReference string
}

type CardPaymentRequest struct {
	Token             string  `json:"token"`
	IssuerID          string  `json:"issuer_id,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id"`
	Installments      int     `json:"installments"`
	Amount            float64 `json:"transaction_amount"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"external_reference,omitempty"`
	Payer             Payer   `json:"payer"`
}

// CreatePixPayment creates a PIX payment and returns the QR code material.
func (c *Client) CreatePixPayment(ctx context.Context, buyer Buyer, amount float64, description, externalReference string) (*PixPayment, error) {
	first, last := splitName(buyer.Name)
	body := map[string]any{
		"transaction_amount": amount,
		"description":        description,
		"payment_method_id":  "pix",
		"payer": Payer{
			Email:     buyer.Email,
			FirstName: first,
			LastName:  last,
			Identification: &Identification{
				Type:   "CPF",
				Number: digitsOnly(buyer.CPF),
			},
		},
		"external_reference": externalReference,
		"notification_url":   c.notifyURL,
		"metadata": Metadata{
			"buyer_email":   buyer.Email,
			"customer_name": buyer.Name,
			"payer_cpf":     digitsOnly(buyer.CPF),
			"order_id":      externalReference,
		},
	}

	details, err := c.createPayment(ctx, body)
	if err != nil {
		return nil, &domain.GatewayError{Op: "create pix payment", Err: err}
	}

	pix := &PixPayment{
		ID:                details.ID.String(),
		Status:            details.Status,
		ExternalReference: details.ExternalReference,
	}
	if details.PointOfInteraction != nil && details.PointOfInteraction.TransactionData != nil {
		pix.QRCode = details.PointOfInteraction.TransactionData.QRCode
		pix.QRCodeBase64 = details.PointOfInteraction.TransactionData.QRCodeBase64
	}
	return pix, nil
}

// CreateCardPayment forwards a tokenized card payment and returns the raw
// gateway payment object.
func (c *Client) CreateCardPayment(ctx context.Context, req CardPaymentRequest) (*PaymentDetails, error) {
	details, err := c.createPayment(ctx, req)
	if err != nil {
		return nil, &domain.GatewayError{Op: "create card payment", Err: err}
	}
	return details, nil
}

// GetPaymentDetails fetches the authoritative payment object by gateway id.
func (c *Client) GetPaymentDetails(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.GatewayError{Op: "get payment details", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: "get payment details", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.GatewayError{
			Op:  "get payment details",
			Err: fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.GatewayError{Op: "get payment details", Err: err}
	}

	var details PaymentDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, &domain.GatewayError{Op: "get payment details", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	details.Raw = raw
	return &details, nil
}

func (c *Client) createPayment(ctx context.Context, body any) (*PaymentDetails, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var details PaymentDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	details.Raw = raw
	return &details, nil
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
