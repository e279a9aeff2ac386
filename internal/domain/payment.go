package domain

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusInProcess PaymentStatus = "IN_PROCESS"
)

// NormalizeStatus maps a raw gateway status string onto the local enum.
// Unknown values are kept uppercased so nothing reported by the gateway is
// silently lost.
func NormalizeStatus(raw string) PaymentStatus {
	return PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsTerminal reports whether the status is final. A terminal status must not
// regress to PENDING on a stale notification.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled:
		return true
	}
	return false
}

type Payment struct {
	ID                string
	GatewayID         string
	ExternalReference string
	Amount            float64
	PaymentMethod     string
	Status            PaymentStatus
	PayerName         string
	PayerEmail        string
	PayerCPF          string
	Description       string
	Items             string
	StatusDetail      string
	RejectionReason   string
	GatewayUpdatedAt  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// WebhookEvents holds the newest audit rows when the payment was loaded
	// through a lookup; capped at the 10 most recent.
	WebhookEvents []WebhookEvent
}
