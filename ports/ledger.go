package ports

import (
	"context"

	"github.com/layer-3/planmint/core"
)

// Ledger is the token program as seen by the issuing authority
type Ledger interface {
	// Authority returns the issuing authority address.
	Authority() string
	AuthorityBalance(ctx context.Context) (uint64, error)

	HoldingBalance(ctx context.Context, owner, mint string) (core.Holding, error)

	// Submit signs ops as a single atomic transaction and sends it. The returned
	// transaction is identified even when the network has not confirmed it. An
	// error wrapping core.ErrLedgerSubmissionFailed means it can never land.
	Submit(ctx context.Context, ops []core.Operation) (core.SentTx, error)

	// AwaitFinality blocks until tx reaches the configured commitment. It
	// returns core.ErrLedgerTimeout when ctx ends first and
	// core.ErrLedgerSubmissionFailed when the transaction failed on chain or
	// expired without landing.
	AwaitFinality(ctx context.Context, tx core.SentTx) error

	// Status reports TxFailed for a transaction that failed on chain or whose
	// blockhash expired before it landed.
	Status(ctx context.Context, tx core.SentTx) (core.TxStatus, error)
}

// Locker serializes mutating operations per key
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
