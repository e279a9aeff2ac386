// Package classify maps gateway rejection codes onto a fixed taxonomy of
// human-readable reasons. It is pure and shared by the webhook reconciler and
// the status query endpoint.
package classify

type Type string

const (
	TypeInsufficientAmount    Type = "insufficient_amount"
	TypeInvalidCardNumber     Type = "invalid_card_number"
	TypeInvalidExpiryDate     Type = "invalid_expiry_date"
	TypeInvalidCardData       Type = "invalid_card_data"
	TypeAuthorizationRequired Type = "authorization_required"
	TypeGeneralError          Type = "general_error"
)

type Classification struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

type rule struct {
	codes []string
	class Classification
}

// Checked in order; first match wins.
var rules = []rule{
	{
		codes: []string{"cc_rejected_insufficient_amount", "insufficient_amount"},
		class: Classification{Type: TypeInsufficientAmount, Reason: "Quantia insuficiente"},
	},
	{
		codes: []string{"cc_rejected_bad_filled_card_number"},
		class: Classification{Type: TypeInvalidCardNumber, Reason: "Número do cartão inválido"},
	},
	{
		codes: []string{"cc_rejected_bad_filled_date"},
		class: Classification{Type: TypeInvalidExpiryDate, Reason: "Data de validade inválida"},
	},
	{
		codes: []string{"cc_rejected_bad_filled_other"},
		class: Classification{Type: TypeInvalidCardData, Reason: "Dados do cartão incorretos"},
	},
	{
		codes: []string{"cc_rejected_call_for_authorize"},
		class: Classification{Type: TypeAuthorizationRequired, Reason: "Autorização necessária"},
	},
}

// Classify resolves a gateway status_detail and/or rejection_reason string
// into a rejection classification. Either input may be empty; each rule
// matches against both. Unrecognized codes fall through to a general error.
func Classify(statusDetail, rejectionReason string) Classification {
	for _, r := range rules {
		for _, code := range r.codes {
			if statusDetail == code || rejectionReason == code {
				return r.class
			}
		}
	}
	return Classification{Type: TypeGeneralError, Reason: "Erro geral no processamento"}
}
