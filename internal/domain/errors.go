package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateReference = errors.New("external reference already exists")
)

// ValidationError carries per-field messages for bad creation-endpoint input.
// Surfaced as HTTP 400.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message()
}

// Message picks a single user-facing message. Missing fields win over format
// problems so the storefront shows the most actionable error first.
func (e *ValidationError) Message() string {
	ordered := []string{"Todos os campos são obrigatórios", "CPF inválido", "Email inválido"}
	for _, want := range ordered {
		for _, msg := range e.Fields {
			if msg == want {
				return msg
			}
		}
	}
	for _, msg := range e.Fields {
		return msg
	}
	return "invalid input"
}

// GatewayError means the payment gateway call failed or returned an
// unexpected shape. Retried only inside the webhook reconciler.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// StoreError means persistence failed. The webhook path logs and swallows it
// so the gateway still receives a 200 acknowledgement.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotificationError means the confirmation email could not be sent. Always
// logged and swallowed, never propagated.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification: %v", e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
