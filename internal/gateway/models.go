package gateway

import (
	"encoding/json"
	"strings"
	"time"
)

type Identification struct {
	Type   string `json:"type,omitempty"`
	Number string `json:"number,omitempty"`
}

type Payer struct {
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
}

type Item struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

type AdditionalInfo struct {
	Payer *Payer `json:"payer,omitempty"`
	Items []Item `json:"items,omitempty"`
}

type TransactionData struct {
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
}

type PointOfInteraction struct {
	TransactionData *TransactionData `json:"transaction_data,omitempty"`
}

// Metadata is the free-form metadata object the gateway echoes back. Values
// set at creation time (buyer_email, order_id, customer_name, payer_cpf) come
// back as strings.
type Metadata map[string]any

func (m Metadata) str(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// PaymentDetails is the authoritative payment object fetched from the
// gateway. Every field the webhook flow reads is optional; use the named
// extractors below instead of poking at nested pointers.
type PaymentDetails struct {
	ID                 json.Number         `json:"id"`
	Status             string              `json:"status"`
	StatusDetail       string              `json:"status_detail,omitempty"`
	RejectionReason    string              `json:"rejection_reason,omitempty"`
	ExternalReference  string              `json:"external_reference,omitempty"`
	TransactionAmount  float64             `json:"transaction_amount,omitempty"`
	Description        string              `json:"description,omitempty"`
	PaymentMethodID    string              `json:"payment_method_id,omitempty"`
	DateCreated        *time.Time          `json:"date_created,omitempty"`
	DateLastUpdated    *time.Time          `json:"date_last_updated,omitempty"`
	Payer              *Payer              `json:"payer,omitempty"`
	Metadata           Metadata            `json:"metadata,omitempty"`
	AdditionalInfo     *AdditionalInfo     `json:"additional_info,omitempty"`
	PointOfInteraction *PointOfInteraction `json:"point_of_interaction,omitempty"`

	// Raw is the undecoded gateway response body, kept so card creation can
	// pass the gateway object through untouched.
	Raw json.RawMessage `json:"-"`
}

// BuyerEmail resolves the buyer contact for the confirmation email:
// metadata.buyer_email, then payer.email, then additional_info.payer.email.
// ok is false when no source has one.
func (d *PaymentDetails) BuyerEmail() (email string, ok bool) {
	if v := d.Metadata.str("buyer_email"); v != "" {
		return v, true
	}
	if d.Payer != nil && d.Payer.Email != "" {
		return d.Payer.Email, true
	}
	if d.AdditionalInfo != nil && d.AdditionalInfo.Payer != nil && d.AdditionalInfo.Payer.Email != "" {
		return d.AdditionalInfo.Payer.Email, true
	}
	return "", false
}

// PayerDisplayName resolves a printable buyer name: payer first/last name,
// then metadata.customer_name, then additional_info.payer.first_name.
func (d *PaymentDetails) PayerDisplayName() string {
	if d.Payer != nil && (d.Payer.FirstName != "" || d.Payer.LastName != "") {
		return strings.TrimSpace(strings.Join(nonEmpty(d.Payer.FirstName, d.Payer.LastName), " "))
	}
	if v := d.Metadata.str("customer_name"); v != "" {
		return v
	}
	if d.AdditionalInfo != nil && d.AdditionalInfo.Payer != nil {
		return d.AdditionalInfo.Payer.FirstName
	}
	return ""
}

// PayerDocument resolves the payer CPF: payer.identification.number, then
// metadata.payer_cpf, then additional_info.payer.identification.number.
func (d *PaymentDetails) PayerDocument() string {
	if d.Payer != nil && d.Payer.Identification != nil && d.Payer.Identification.Number != "" {
		return d.Payer.Identification.Number
	}
	if v := d.Metadata.str("payer_cpf"); v != "" {
		return v
	}
	if d.AdditionalInfo != nil && d.AdditionalInfo.Payer != nil &&
		d.AdditionalInfo.Payer.Identification != nil {
		return d.AdditionalInfo.Payer.Identification.Number
	}
	return ""
}

// OrderReference resolves the order identifier used in the confirmation
// email: external_reference, then metadata.order_id, then the gateway id.
func (d *PaymentDetails) OrderReference() string {
	if d.ExternalReference != "" {
		return d.ExternalReference
	}
	if v := d.Metadata.str("order_id"); v != "" {
		return v
	}
	return d.ID.String()
}

// MailItems returns the line items from additional_info with quantity
// defaulting to 1 and unit price to 0.
func (d *PaymentDetails) MailItems() []Item {
	if d.AdditionalInfo == nil || len(d.AdditionalInfo.Items) == 0 {
		return nil
	}
	items := make([]Item, 0, len(d.AdditionalInfo.Items))
	for _, it := range d.AdditionalInfo.Items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		if it.UnitPrice < 0 {
			it.UnitPrice = 0
		}
		items = append(items, it)
	}
	return items
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
