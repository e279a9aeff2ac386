package reconciler

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Notification is the normalized form of a gateway webhook delivery. The
// gateway is inconsistent about where it puts things, so fields are resolved
// body-first with query-string fallbacks.
type Notification struct {
	Type      string
	Action    string
	PaymentID string
	Raw       []byte
}

type notificationBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ParseNotification extracts the event type, action and payment id from the
// request body and query string. A body that is not valid JSON is tolerated:
// the query string alone can still identify the payment.
func ParseNotification(raw []byte, query url.Values) Notification {
	var body notificationBody
	if len(raw) > 0 {
		// Malformed JSON leaves body zero-valued on purpose.
		_ = json.Unmarshal(raw, &body)
	}

	n := Notification{Raw: raw}

	n.Action = body.Action
	if n.Action == "" {
		n.Action = query.Get("action")
	}

	n.Type = body.Type
	if n.Type == "" {
		n.Type = body.Action
	}
	if n.Type == "" {
		n.Type = query.Get("type")
	}
	if n.Type == "" {
		n.Type = query.Get("topic")
	}
	if n.Type == "" {
		n.Type = query.Get("action")
	}

	n.PaymentID = body.Data.ID.String()
	if n.PaymentID == "" {
		n.PaymentID = query.Get("data.id")
	}
	if n.PaymentID == "" {
		n.PaymentID = query.Get("id")
	}

	return n
}

// IsPaymentEvent reports whether the notification concerns a payment. The
// gateway sends other topics (merchant orders, chargebacks) to the same URL;
// a notification with a payment id is treated as a payment event even when
// the type says otherwise.
func (n Notification) IsPaymentEvent() bool {
	return strings.Contains(strings.ToLower(n.Type), "payment") || n.PaymentID != ""
}
