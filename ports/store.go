package ports

import (
	"context"

	"github.com/layer-3/planmint/core"
)

// SubmissionStore records accepted ledger submissions for reconciliation
type SubmissionStore interface {
	Save(ctx context.Context, sub *core.Submission) error
	Get(ctx context.Context, id string) (*core.Submission, error)

	// Transition moves a submission from status `from` to `to` and reports
	// whether this call performed the move.
	Transition(ctx context.Context, id string, from, to core.SubmissionStatus) (bool, error)

	// Latest returns the most recent submission for a wallet and mint.
	Latest(ctx context.Context, wallet, mint string) (*core.Submission, error)
}
