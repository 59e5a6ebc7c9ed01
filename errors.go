package planmint

import (
	"errors"
	"fmt"
)

// Failure codes returned by the server
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeExpired                = "EXPIRED"
	CodeAlreadyClaimed         = "ALREADY_CLAIMED"
	CodeNotEligible            = "NOT_ELIGIBLE"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeLedgerSubmissionFailed = "LEDGER_SUBMISSION_FAILED"
	CodeLedgerTimeout          = "LEDGER_TIMEOUT"
	CodeInternal               = "INTERNAL"
	CodeRateLimited            = "RATE_LIMITED"
)

var (
	// ErrInvalidKey is returned when a wallet secret cannot be decoded
	ErrInvalidKey = errors.New("invalid wallet key")

	// ErrUnexpectedResponse is returned when the server answers outside the protocol
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// APIError is a failure response from the server. A LEDGER_TIMEOUT carries the
// receipt to reconcile with.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"error"`
	Message    string   `json:"message"`
	TxID       string   `json:"txid,omitempty"`
	TxIDs      []string `json:"txids,omitempty"`
	Receipt    string   `json:"receipt,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("planmint: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
