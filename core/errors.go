package core

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnauthorized           = errors.New("signature does not authorize request")
	ErrExpired                = errors.New("request has expired")
	ErrAlreadyClaimed         = errors.New("soulbound token already claimed")
	ErrNotEligible            = errors.New("wallet holds no plan token")
	ErrInsufficientBalance    = errors.New("insufficient token balance")
	ErrLedgerSubmissionFailed = errors.New("ledger rejected transaction")
	ErrLedgerTimeout          = errors.New("transaction finality not observed in time")
	ErrSubmissionNotFound     = errors.New("submission not found")
	ErrInvalidReceipt         = errors.New("invalid receipt")

	// ErrEventRecorded is returned by an event log that already holds an entry
	// of the same type for the same transaction.
	ErrEventRecorded = errors.New("event already recorded")
)

// ErrorCode is the client-facing failure code carried in IssuanceResult.
type ErrorCode string

const (
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	CodeExpired                ErrorCode = "EXPIRED"
	CodeAlreadyClaimed         ErrorCode = "ALREADY_CLAIMED"
	CodeNotEligible            ErrorCode = "NOT_ELIGIBLE"
	CodeInsufficientBalance    ErrorCode = "INSUFFICIENT_BALANCE"
	CodeLedgerSubmissionFailed ErrorCode = "LEDGER_SUBMISSION_FAILED"
	CodeLedgerTimeout          ErrorCode = "LEDGER_TIMEOUT"
	CodeInternal               ErrorCode = "INTERNAL"

	// CodeRateLimited is produced by the HTTP layer only; CodeOf never returns it.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrInvalidReceipt, CodeUnauthorized},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrExpired, CodeExpired},
	{ErrAlreadyClaimed, CodeAlreadyClaimed},
	{ErrNotEligible, CodeNotEligible},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrLedgerSubmissionFailed, CodeLedgerSubmissionFailed},
	{ErrLedgerTimeout, CodeLedgerTimeout},
}

// CodeOf maps an error chain onto the failure taxonomy. Anything unrecognised is INTERNAL.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
