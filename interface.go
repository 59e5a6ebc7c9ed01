package planmint

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client represents the public interface for interacting with a planmint server
type Client interface {
	// MintNFT issues quantity units of a plan token to the signing wallet
	MintNFT(ctx context.Context, req MintRequest) (*Result, error)

	// BurnNFT burns one unit of a plan token held by the signing wallet
	BurnNFT(ctx context.Context, req BurnRequest) (*Result, error)

	// MintSoulbound claims the soulbound token for a wallet holding any plan token
	MintSoulbound(ctx context.Context, req SoulboundRequest) (*Result, error)

	// LogBurn records a burn the wallet submitted itself
	LogBurn(ctx context.Context, wallet, mint, txID string) error

	// Reconcile resolves the receipt of a request that timed out
	Reconcile(ctx context.Context, receipt string) (*Result, error)

	// Health reports the issuing authority and its balance
	Health(ctx context.Context) (*Health, error)
}

// MintRequest is the body of POST /mint-nft
type MintRequest struct {
	UserPubkey string `json:"userPubkey"`
	Plan       string `json:"plan"`
	Message    string `json:"message"`
	Signature  string `json:"signature"`
	Quantity   int    `json:"quantity,omitempty"`
}

// BurnRequest is the body of POST /burn-nft
type BurnRequest struct {
	UserPubkey string `json:"userPubkey"`
	Plan       string `json:"plan"`
	Message    string `json:"message"`
	Signature  string `json:"signature"`
}

// SoulboundRequest is the body of POST /mint-soulbound
type SoulboundRequest struct {
	UserPubkey string `json:"userPubkey"`
	Message    string `json:"message"`
	Signature  string `json:"signature"`
}

// Result is a successful issuance response
type Result struct {
	Success    bool     `json:"success"`
	TxID       string   `json:"txid"`
	TxIDs      []string `json:"txids,omitempty"`
	Mint       string   `json:"mint,omitempty"`
	NeedsClose bool     `json:"needsClose,omitempty"`
	Receipt    string   `json:"receipt,omitempty"`
}

type Health struct {
	Status     string          `json:"status"`
	Authority  string          `json:"authority"`
	BalanceSol decimal.Decimal `json:"balanceSol"`
}
