package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/logging"
	"github.com/layer-3/planmint/internal/metrics"
	"github.com/layer-3/planmint/ports"
	"github.com/sirupsen/logrus"
)

// DefaultFinalityTimeout bounds how long a request waits for its transaction
const DefaultFinalityTimeout = 60 * time.Second

const actionReconcile core.Action = "RECONCILE"

// Deps are the collaborators shared by the issuance and soulbound services.
// Publisher may be nil.
type Deps struct {
	Registry  *core.Registry
	Verifier  ports.Verifier
	Ledger    ports.Ledger
	Locker    ports.Locker
	Store     ports.SubmissionStore
	Receipts  ports.Receipts
	EventLog  ports.EventLog
	Publisher ports.EventPublisher
	Logger    logrus.FieldLogger
}

// Options tune issuance behaviour
type Options struct {
	FinalityTimeout  time.Duration
	CloseByAuthority bool
	Now              func() time.Time
}

// engine runs the submit, record, await, confirm pipeline common to every
// mutating operation
type engine struct {
	Deps
	finalityTimeout time.Duration
	now             func() time.Time
}

func newEngine(deps Deps, opts Options) engine {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	timeout := opts.FinalityTimeout
	if timeout <= 0 {
		timeout = DefaultFinalityTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return engine{Deps: deps, finalityTimeout: timeout, now: now}
}

// authorize validates the request, checks its intent binding and signature,
// then its freshness. Nothing touches the ledger before it passes.
func (e *engine) authorize(req core.AuthorizedRequest) error {
	if err := req.Validate(e.Registry); err != nil {
		return err
	}
	if !e.Verifier.ValidAddress(req.WalletAddress) {
		return fmt.Errorf("malformed wallet address: %w", core.ErrInvalidRequest)
	}
	if err := core.CheckIntent(req); err != nil {
		return err
	}
	if !e.Verifier.Verify(req.WalletAddress, req.Message, req.Signature) {
		return fmt.Errorf("signature does not verify: %w", core.ErrUnauthorized)
	}
	issuedAt, err := core.ParseEpoch(req.Message)
	if err != nil {
		return err
	}
	return core.CheckFresh(issuedAt, e.now())
}

func (e *engine) lock(ctx context.Context, wallet, mint string) (func(), error) {
	start := time.Now()
	unlock, err := e.Locker.Lock(ctx, wallet+":"+mint)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", logging.MaskShort(wallet), err)
	}
	return unlock, nil
}

func (e *engine) requestLogger(action core.Action, wallet, plan string) logrus.FieldLogger {
	return e.Logger.WithFields(logrus.Fields{
		"action": action,
		"wallet": logging.MaskShort(wallet),
		"plan":   plan,
	})
}

// execute submits ops as one transaction for sub and follows it to finality.
// ctx must already be detached from the caller: an accepted submission is
// never abandoned because a client went away.
func (e *engine) execute(ctx context.Context, sub *core.Submission, ops []core.Operation) (core.IssuanceResult, error) {
	res := core.IssuanceResult{MintAddress: sub.Mint, NeedsClose: sub.NeedsClose}
	action := string(sub.Action)

	sent, err := e.Ledger.Submit(ctx, ops)
	if err != nil {
		metrics.LedgerSubmissions.WithLabelValues(action, "rejected").Inc()
		if !errors.Is(err, core.ErrLedgerSubmissionFailed) {
			err = fmt.Errorf("%v: %w", err, core.ErrLedgerSubmissionFailed)
		}
		return res, err
	}
	metrics.LedgerSubmissions.WithLabelValues(action, "accepted").Inc()

	now := e.now().UTC()
	sub.ID = sent.ID
	sub.LastValidBlock = sent.LastValidBlock
	sub.TransactionIDs = []string{sent.ID}
	sub.Status = core.SubmissionPending
	sub.CreatedAt = now
	sub.UpdatedAt = now
	res.TransactionIDs = []string{sent.ID}

	log := e.Logger.WithFields(logrus.Fields{"action": action, "txid": sent.ID})
	if err := e.Store.Save(ctx, sub); err != nil {
		// the receipt still carries everything reconciliation needs
		log.WithError(err).Warn("failed to record submission")
	}
	if receipt, err := e.Receipts.SubmissionToReceipt(sub); err != nil {
		log.WithError(err).Error("failed to issue receipt")
	} else {
		res.Receipt = receipt
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.finalityTimeout)
	defer cancel()
	start := time.Now()
	err = e.Ledger.AwaitFinality(waitCtx, sub.Tx())
	metrics.FinalityWait.WithLabelValues(action).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, core.ErrLedgerSubmissionFailed):
		e.markFailed(ctx, sub)
		return res, err
	case errors.Is(err, core.ErrLedgerTimeout):
		return res, err
	default:
		// outcome unknown, the client has to reconcile
		return res, fmt.Errorf("%v: %w", err, core.ErrLedgerTimeout)
	}

	if err := e.confirm(ctx, sub); err != nil {
		return res, err
	}
	return res, nil
}

// confirm moves sub to confirmed and records it. Only the caller that wins
// the transition writes the event log, so a submission is logged once.
func (e *engine) confirm(ctx context.Context, sub *core.Submission) error {
	moved, err := e.Store.Transition(ctx, sub.ID, core.SubmissionPending, core.SubmissionConfirmed)
	switch {
	case errors.Is(err, core.ErrSubmissionNotFound):
		confirmed := *sub
		confirmed.Status = core.SubmissionConfirmed
		confirmed.UpdatedAt = e.now().UTC()
		if err := e.Store.Save(ctx, &confirmed); err != nil {
			e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to record confirmed submission")
		}
	case err != nil:
		e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to mark submission confirmed")
	case !moved:
		return nil
	}

	if err := e.record(ctx, sub); err != nil {
		// hand the entry back to reconciliation
		if _, terr := e.Store.Transition(ctx, sub.ID, core.SubmissionConfirmed, core.SubmissionPending); terr != nil {
			e.Logger.WithError(terr).WithField("txid", sub.ID).Error("failed to reopen submission")
		}
		return err
	}
	return nil
}

func (e *engine) markFailed(ctx context.Context, sub *core.Submission) {
	if _, err := e.Store.Transition(ctx, sub.ID, core.SubmissionPending, core.SubmissionFailed); err != nil && !errors.Is(err, core.ErrSubmissionNotFound) {
		e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to mark submission failed")
	}
}

// record appends the event log entry for a confirmed submission and publishes it
func (e *engine) record(ctx context.Context, sub *core.Submission) error {
	entry := core.EventLogEntry{
		ID:             uuid.NewString(),
		Type:           sub.EventType(),
		Wallet:         sub.Wallet,
		PlanID:         sub.PlanID,
		Mint:           sub.Mint,
		Quantity:       sub.Quantity,
		TransactionIDs: append([]string(nil), sub.TransactionIDs...),
		Timestamp:      e.now().UTC(),
	}
	return e.appendEntry(ctx, entry)
}

// appendEntry is idempotent per entry type and first transaction id
func (e *engine) appendEntry(ctx context.Context, entry core.EventLogEntry) error {
	err := e.EventLog.Append(ctx, entry)
	switch {
	case errors.Is(err, core.ErrEventRecorded):
		metrics.EventLogAppends.WithLabelValues(string(entry.Type), "duplicate").Inc()
		e.Logger.WithFields(logrus.Fields{"type": entry.Type, "txids": entry.TransactionIDs}).Debug("event already recorded")
		return nil
	case err != nil:
		metrics.EventLogAppends.WithLabelValues(string(entry.Type), "error").Inc()
		return fmt.Errorf("failed to append event log: %w", err)
	}
	metrics.EventLogAppends.WithLabelValues(string(entry.Type), "ok").Inc()

	if e.Publisher != nil {
		if err := e.Publisher.PublishIssuance(ctx, entry); err != nil {
			e.Logger.WithError(err).WithField("event", entry.ID).Warn("failed to publish event")
		}
	}
	return nil
}

// finish stamps the outcome onto res, counts it and logs it
func (e *engine) finish(log logrus.FieldLogger, action core.Action, res core.IssuanceResult, err error) (core.IssuanceResult, error) {
	if err != nil {
		res = core.Failure(err, res)
		metrics.Operations.WithLabelValues(string(action), string(res.Error)).Inc()
		entry := log.WithError(err).WithField("code", res.Error)
		if len(res.TransactionIDs) > 0 {
			entry = entry.WithField("txids", res.TransactionIDs)
		}
		if res.Error == core.CodeInternal {
			entry.Error("operation failed")
		} else {
			entry.Warn("operation rejected")
		}
		return res, err
	}

	res.Success = true
	res.Error = ""
	metrics.Operations.WithLabelValues(string(action), "OK").Inc()
	log.WithField("txids", res.TransactionIDs).Info("operation confirmed")
	return res, nil
}

// Reconcile resolves a receipt against the store and the ledger. It never
// submits a transaction; a confirmed submission is reported as recorded.
func (e *engine) Reconcile(ctx context.Context, receipt string) (core.IssuanceResult, error) {
	sub, err := e.Receipts.ReceiptToSubmission(receipt)
	if err != nil {
		return e.finish(e.Logger.WithField("action", actionReconcile), actionReconcile, core.IssuanceResult{}, err)
	}
	log := e.requestLogger(sub.Action, sub.Wallet, sub.PlanID).WithField("txid", sub.ID)
	res, err := e.reconcile(ctx, sub, receipt)
	return e.finish(log, sub.Action, res, err)
}

func (e *engine) reconcile(ctx context.Context, claimed *core.Submission, receipt string) (core.IssuanceResult, error) {
	pending := core.IssuanceResult{
		TransactionIDs: append([]string(nil), claimed.TransactionIDs...),
		MintAddress:    claimed.Mint,
		NeedsClose:     claimed.NeedsClose,
		Receipt:        receipt,
	}

	sub, known, err := e.lookup(ctx, claimed)
	if err != nil {
		return pending, err
	}
	if res, done, err := settled(sub); done {
		return res, err
	}

	unlock, err := e.lock(ctx, sub.Wallet, sub.Mint)
	if err != nil {
		return pending, err
	}
	defer unlock()
	work := context.WithoutCancel(ctx)

	// another request may have settled it while we waited
	if sub, known, err = e.lookup(work, claimed); err != nil {
		return pending, err
	}
	if res, done, err := settled(sub); done {
		return res, err
	}

	status, err := e.Ledger.Status(work, sub.Tx())
	if err != nil {
		return pending, fmt.Errorf("%v: %w", err, core.ErrLedgerTimeout)
	}

	switch status {
	case core.TxFinalized:
		if !known {
			// the store may have forgotten a submission that was logged long ago
			recorded, err := e.EventLog.Recorded(work, sub.EventType(), sub.ID)
			if err != nil {
				return pending, err
			}
			if recorded {
				confirmed := *sub
				confirmed.Status = core.SubmissionConfirmed
				confirmed.UpdatedAt = e.now().UTC()
				if err := e.Store.Save(work, &confirmed); err != nil {
					e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to record reconciled submission")
				}
				return sub.Result(), nil
			}
			if err := e.Store.Save(work, sub); err != nil {
				e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to record reconciled submission")
			}
		}
		if err := e.confirm(work, sub); err != nil {
			return pending, err
		}
		return sub.Result(), nil
	case core.TxFailed:
		if !known {
			failed := *sub
			failed.Status = core.SubmissionFailed
			if err := e.Store.Save(work, &failed); err != nil {
				e.Logger.WithError(err).WithField("txid", sub.ID).Warn("failed to record reconciled submission")
			}
		} else {
			e.markFailed(work, sub)
		}
		return pending, fmt.Errorf("transaction %s failed: %w", sub.ID, core.ErrLedgerSubmissionFailed)
	default:
		return pending, fmt.Errorf("transaction %s still pending: %w", sub.ID, core.ErrLedgerTimeout)
	}
}

// lookup prefers the stored record over the receipt's copy
func (e *engine) lookup(ctx context.Context, claimed *core.Submission) (*core.Submission, bool, error) {
	stored, err := e.Store.Get(ctx, claimed.ID)
	switch {
	case err == nil:
		if stored.Wallet != claimed.Wallet || stored.Mint != claimed.Mint {
			return nil, false, fmt.Errorf("receipt does not match recorded submission: %w", core.ErrInvalidReceipt)
		}
		return stored, true, nil
	case errors.Is(err, core.ErrSubmissionNotFound):
		c := *claimed
		return &c, false, nil
	default:
		e.Logger.WithError(err).WithField("txid", claimed.ID).Warn("submission store unavailable, using receipt")
		c := *claimed
		return &c, false, nil
	}
}

// settled reports the outcome of a submission in a terminal state
func settled(sub *core.Submission) (core.IssuanceResult, bool, error) {
	switch sub.Status {
	case core.SubmissionConfirmed:
		return sub.Result(), true, nil
	case core.SubmissionFailed:
		res := sub.Result()
		res.Success = false
		return res, true, fmt.Errorf("transaction %s failed: %w", sub.ID, core.ErrLedgerSubmissionFailed)
	}
	return core.IssuanceResult{}, false, nil
}
