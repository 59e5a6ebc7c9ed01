package ports

import "github.com/layer-3/planmint/core"

// Verifier checks wallet addresses and detached wallet signatures
type Verifier interface {
	ValidAddress(address string) bool
	Verify(address, message, signature string) bool
}

// Receipts converts between submissions and client-held receipt tokens
type Receipts interface {
	SubmissionToReceipt(sub *core.Submission) (string, error)
	ReceiptToSubmission(receipt string) (*core.Submission, error)
}
