package domain

import "time"

// WebhookEvent is the audit record of one inbound gateway notification.
// Rows are created on receipt and marked processed afterwards; they are
// never deleted.
type WebhookEvent struct {
	ID          string
	PaymentID   string
	EventType   string
	Payload     string
	Processed   bool
	ProcessedAt *time.Time
	Error       string
	CreatedAt   time.Time
}
