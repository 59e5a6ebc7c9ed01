package receipt

import "github.com/golang-jwt/jwt/v5"

// ReceiptClaims carry everything needed to reconcile a submission after the
// store has forgotten it
type ReceiptClaims struct {
	jwt.RegisteredClaims
	Action     string   `json:"act"`
	PlanID     string   `json:"plan,omitempty"`
	Mint       string   `json:"mint"`
	Quantity   int      `json:"qty"`
	NeedsClose bool     `json:"nc,omitempty"`
	TxIDs      []string `json:"txids"`
	LastValid  uint64   `json:"lvb,omitempty"`
}
