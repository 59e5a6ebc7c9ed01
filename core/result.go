package core

import "time"

// IssuanceResult is returned to the caller for every mint, burn, claim or reconcile.
type IssuanceResult struct {
	Success        bool
	TransactionIDs []string
	MintAddress    string
	NeedsClose     bool
	Receipt        string
	Error          ErrorCode
}

// Failure builds the result for err, keeping any transaction ids already produced.
func Failure(err error, partial IssuanceResult) IssuanceResult {
	partial.Success = false
	partial.Error = CodeOf(err)
	return partial
}

// EventType classifies an event log entry.
type EventType string

const (
	EventNormalMint        EventType = "normal-nft-mint"
	EventBackendBurn       EventType = "backend-burn"
	EventSoulboundMint     EventType = "soulbound-mint"
	EventUserInitiatedBurn EventType = "user-initiated-burn"
)

// EventLogEntry is one append-only audit record.
type EventLogEntry struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Wallet         string    `json:"wallet"`
	PlanID         string    `json:"plan,omitempty"`
	Mint           string    `json:"mint"`
	Quantity       int       `json:"quantity,omitempty"`
	TransactionIDs []string  `json:"txids"`
	Timestamp      time.Time `json:"timestamp"`
}

// SubmissionStatus tracks an accepted ledger submission.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission records a transaction the issuing authority sent, keyed by its
// first transaction id. Only pending submissions may change status.
type Submission struct {
	ID             string           `json:"id"`
	Action         Action           `json:"action"`
	Wallet         string           `json:"wallet"`
	PlanID         string           `json:"plan,omitempty"`
	Mint           string           `json:"mint"`
	Quantity       int              `json:"quantity"`
	NeedsClose     bool             `json:"needsClose,omitempty"`
	TransactionIDs []string         `json:"txids"`
	LastValidBlock uint64           `json:"lastValidBlock,omitempty"`
	Status         SubmissionStatus `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// EventType returns the log entry type recorded when the submission confirms.
func (s *Submission) EventType() EventType {
	switch s.Action {
	case ActionBurn:
		return EventBackendBurn
	case ActionClaimSoulbound:
		return EventSoulboundMint
	default:
		return EventNormalMint
	}
}

// Tx identifies the submitted transaction for ledger status queries
func (s *Submission) Tx() SentTx {
	return SentTx{ID: s.ID, LastValidBlock: s.LastValidBlock}
}

// Result renders the submission as a successful issuance result.
func (s *Submission) Result() IssuanceResult {
	return IssuanceResult{
		Success:        true,
		TransactionIDs: append([]string(nil), s.TransactionIDs...),
		MintAddress:    s.Mint,
		NeedsClose:     s.NeedsClose,
	}
}

// OperationKind is a ledger-agnostic token instruction.
type OperationKind string

const (
	OpCreateHolding OperationKind = "create-holding"
	OpMint          OperationKind = "mint"
	OpBurn          OperationKind = "burn"
	OpClose         OperationKind = "close"
)

// Operation is one instruction within an atomic ledger submission.
type Operation struct {
	Kind   OperationKind
	Owner  string
	Mint   string
	Amount uint64
}

// Holding is a wallet's holding account for one mint.
type Holding struct {
	Exists bool
	Amount uint64
}

// SentTx is a signed transaction handed to the ledger. LastValidBlock is the
// last block height that may include it; zero means the ledger gave no bound.
type SentTx struct {
	ID             string
	LastValidBlock uint64
}

// TxStatus is the ledger's view of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxFinalized TxStatus = "finalized"
	TxFailed    TxStatus = "failed"
)

// AuditFinding flags a soulbound holder without any qualifying plan token.
type AuditFinding struct {
	Wallet        string    `json:"wallet"`
	SoulboundMint string    `json:"soulboundMint"`
	CheckedAt     time.Time `json:"checkedAt"`
}
