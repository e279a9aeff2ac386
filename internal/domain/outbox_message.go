package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
)

// OutboxMessage is a payment-status event waiting to be published to Kafka.
// It is written in the same transaction as the payment update it describes.
type OutboxMessage struct {
	ID        string
	PaymentID string
	EventType string
	Payload   []byte
	Status    OutboxMessageStatus
	CreatedAt time.Time
	SentAt    *time.Time
}
