package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/logging"
	"github.com/sirupsen/logrus"
)

// IssuanceService mints and burns plan tokens for signed wallet requests
type IssuanceService struct {
	engine
	closeByAuthority bool
}

// NewIssuanceService creates a new issuance service
func NewIssuanceService(deps Deps, opts Options) *IssuanceService {
	return &IssuanceService{
		engine:           newEngine(deps, opts),
		closeByAuthority: opts.CloseByAuthority,
	}
}

// Issue mints req.Quantity units of the requested plan in one transaction
func (s *IssuanceService) Issue(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	req.Action = core.ActionIssue
	log := s.requestLogger(req.Action, req.WalletAddress, req.PlanID).WithField("quantity", req.Quantity)
	res, err := s.issue(ctx, req)
	return s.finish(log, req.Action, res, err)
}

func (s *IssuanceService) issue(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	if err := s.authorize(req); err != nil {
		return core.IssuanceResult{}, err
	}
	plan, _ := s.Registry.Plan(req.PlanID)
	res := core.IssuanceResult{MintAddress: plan.MintAddress}

	unlock, err := s.lock(ctx, req.WalletAddress, plan.MintAddress)
	if err != nil {
		return res, err
	}
	defer unlock()
	work := context.WithoutCancel(ctx)

	holding, err := s.Ledger.HoldingBalance(work, req.WalletAddress, plan.MintAddress)
	if err != nil {
		return res, fmt.Errorf("failed to read holding account: %w", err)
	}

	ops := make([]core.Operation, 0, req.Quantity+1)
	if !holding.Exists {
		ops = append(ops, core.Operation{Kind: core.OpCreateHolding, Owner: req.WalletAddress, Mint: plan.MintAddress})
	}
	for i := 0; i < req.Quantity; i++ {
		ops = append(ops, core.Operation{Kind: core.OpMint, Owner: req.WalletAddress, Mint: plan.MintAddress, Amount: 1})
	}

	return s.execute(work, &core.Submission{
		Action:   core.ActionIssue,
		Wallet:   req.WalletAddress,
		PlanID:   plan.PlanID,
		Mint:     plan.MintAddress,
		Quantity: req.Quantity,
	}, ops)
}

// Burn removes one unit of the requested plan. When the holding account
// empties it is closed in the same transaction if the authority may close it;
// otherwise NeedsClose tells the owner to close it.
func (s *IssuanceService) Burn(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	req.Action = core.ActionBurn
	log := s.requestLogger(req.Action, req.WalletAddress, req.PlanID)
	res, err := s.burn(ctx, req)
	return s.finish(log, req.Action, res, err)
}

func (s *IssuanceService) burn(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	if err := s.authorize(req); err != nil {
		return core.IssuanceResult{}, err
	}
	plan, _ := s.Registry.Plan(req.PlanID)
	res := core.IssuanceResult{MintAddress: plan.MintAddress}

	unlock, err := s.lock(ctx, req.WalletAddress, plan.MintAddress)
	if err != nil {
		return res, err
	}
	defer unlock()
	work := context.WithoutCancel(ctx)

	holding, err := s.Ledger.HoldingBalance(work, req.WalletAddress, plan.MintAddress)
	if err != nil {
		return res, fmt.Errorf("failed to read holding account: %w", err)
	}
	if !holding.Exists || holding.Amount < 1 {
		return res, fmt.Errorf("wallet holds no %s: %w", plan.PlanID, core.ErrInsufficientBalance)
	}

	ops := []core.Operation{{Kind: core.OpBurn, Owner: req.WalletAddress, Mint: plan.MintAddress, Amount: 1}}
	needsClose := false
	if holding.Amount == 1 {
		if s.closeByAuthority {
			ops = append(ops, core.Operation{Kind: core.OpClose, Owner: req.WalletAddress, Mint: plan.MintAddress})
		} else {
			needsClose = true
		}
	}

	return s.execute(work, &core.Submission{
		Action:     core.ActionBurn,
		Wallet:     req.WalletAddress,
		PlanID:     plan.PlanID,
		Mint:       plan.MintAddress,
		Quantity:   1,
		NeedsClose: needsClose,
	}, ops)
}

// LogBurn records a burn the wallet performed itself. The transaction is taken
// on the client's word and not looked up.
func (s *IssuanceService) LogBurn(ctx context.Context, wallet, mint, txID string) error {
	log := s.Logger.WithFields(logrus.Fields{
		"action": core.EventUserInitiatedBurn,
		"wallet": logging.MaskShort(wallet),
		"mint":   mint,
	})

	err := s.logBurn(ctx, wallet, mint, txID)
	if err != nil {
		log.WithError(err).WithField("code", core.CodeOf(err)).Warn("burn log rejected")
		return err
	}
	log.WithField("txid", txID).Info("user burn logged")
	return nil
}

func (s *IssuanceService) logBurn(ctx context.Context, wallet, mint, txID string) error {
	if !s.Verifier.ValidAddress(wallet) {
		return fmt.Errorf("malformed wallet address: %w", core.ErrInvalidRequest)
	}
	if !s.Registry.Known(mint) {
		return fmt.Errorf("unknown mint %s: %w", mint, core.ErrInvalidRequest)
	}
	if txID == "" {
		return fmt.Errorf("transaction id is required: %w", core.ErrInvalidRequest)
	}

	plan, _ := s.Registry.PlanForMint(mint)
	return s.appendEntry(ctx, core.EventLogEntry{
		ID:             uuid.NewString(),
		Type:           core.EventUserInitiatedBurn,
		Wallet:         wallet,
		PlanID:         plan,
		Mint:           mint,
		Quantity:       1,
		TransactionIDs: []string{txID},
		Timestamp:      s.now().UTC(),
	})
}
