package gateway

import "encoding/json"

// Credentials is the fixed service-account pair attached to every gateway
// call. Injected here so orchestration code never sees it.
type Credentials struct {
	Username string
	Password string
}

type Product struct {
	ProductType        string `json:"product_type"`
	ProductCode        string `json:"product_code"`
	ProductDescription string `json:"product_description"`
	ProductCategory    string `json:"product_category"`
	ProductValue       string `json:"product_value"`
}

// PurchaseResult is the gateway's immediate answer to a purchase or confirm
// call. Accepted does not mean settled; for electricity it only means the
// gateway will process the purchase asynchronously.
type PurchaseResult struct {
	Accepted  bool
	Reference string
}

type SettlementOutcome int

const (
	OutcomePending SettlementOutcome = iota
	OutcomeNeedsConfirmation
	OutcomeSettled
)

// SettlementStatus is one status poll's answer. Three-way, not boolean:
// still pending, wants an explicit confirm call, or settled with a token.
type SettlementStatus struct {
	ConfirmationNumber string
	Token              string
	Raw                json.RawMessage
}

// Classify resolves the poll outcome. A token wins over a confirmation
// number carried in the same response; no further confirm is attempted.
func (s SettlementStatus) Classify() SettlementOutcome {
	if s.Token != "" {
		return OutcomeSettled
	}
	if s.ConfirmationNumber != "" {
		return OutcomeNeedsConfirmation
	}
	return OutcomePending
}
