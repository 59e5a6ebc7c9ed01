package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/planmint/core"
)

// SoulboundService grants the one-per-wallet soulbound token to plan holders
type SoulboundService struct {
	engine
}

// NewSoulboundService creates a new soulbound service
func NewSoulboundService(deps Deps, opts Options) *SoulboundService {
	return &SoulboundService{engine: newEngine(deps, opts)}
}

// TryClaim mints the soulbound token if the wallet has none and holds at least
// one plan token. Claims for the same wallet are serialized.
func (s *SoulboundService) TryClaim(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	req.Action = core.ActionClaimSoulbound
	req.PlanID = ""
	req.Quantity = 1
	log := s.requestLogger(req.Action, req.WalletAddress, "")
	res, err := s.claim(ctx, req)
	return s.finish(log, req.Action, res, err)
}

func (s *SoulboundService) claim(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error) {
	if err := s.authorize(req); err != nil {
		return core.IssuanceResult{}, err
	}
	wallet := req.WalletAddress
	mint := s.Registry.SoulboundMint()
	res := core.IssuanceResult{MintAddress: mint}

	unlock, err := s.lock(ctx, wallet, mint)
	if err != nil {
		return res, err
	}
	defer unlock()
	work := context.WithoutCancel(ctx)

	if err := s.checkInFlight(work, wallet, mint); err != nil {
		return res, err
	}

	holding, err := s.Ledger.HoldingBalance(work, wallet, mint)
	if err != nil {
		return res, fmt.Errorf("failed to read soulbound holding: %w", err)
	}
	if holding.Amount > 0 {
		return res, core.ErrAlreadyClaimed
	}

	eligible, err := s.eligiblePlan(work, wallet)
	if err != nil {
		return res, err
	}
	if eligible == "" {
		return res, core.ErrNotEligible
	}
	s.Logger.WithField("plan", eligible).Debug("soulbound eligibility satisfied")

	ops := make([]core.Operation, 0, 2)
	if !holding.Exists {
		ops = append(ops, core.Operation{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint})
	}
	ops = append(ops, core.Operation{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1})

	return s.execute(work, &core.Submission{
		Action:   core.ActionClaimSoulbound,
		Wallet:   wallet,
		Mint:     mint,
		Quantity: 1,
	}, ops)
}

// checkInFlight treats an unsettled or freshly confirmed earlier claim as
// claimed. A claim the ledger has since finalized or failed is settled here
// first.
func (s *SoulboundService) checkInFlight(ctx context.Context, wallet, mint string) error {
	latest, err := s.Store.Latest(ctx, wallet, mint)
	if errors.Is(err, core.ErrSubmissionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up earlier claim: %w", err)
	}
	switch latest.Status {
	case core.SubmissionPending:
	case core.SubmissionConfirmed:
		// a balance read may not see a confirmation that recent yet
		if s.now().Sub(latest.UpdatedAt) < s.finalityTimeout {
			return fmt.Errorf("earlier claim %s confirmed: %w", latest.ID, core.ErrAlreadyClaimed)
		}
		return nil
	default:
		return nil
	}

	status, err := s.Ledger.Status(ctx, latest.Tx())
	if err != nil {
		return fmt.Errorf("earlier claim %s unresolved (%v): %w", latest.ID, err, core.ErrAlreadyClaimed)
	}
	switch status {
	case core.TxFailed:
		s.markFailed(ctx, latest)
		return nil
	case core.TxFinalized:
		if err := s.confirm(ctx, latest); err != nil {
			s.Logger.WithError(err).WithField("txid", latest.ID).Error("failed to record earlier claim")
		}
		return fmt.Errorf("earlier claim %s finalized: %w", latest.ID, core.ErrAlreadyClaimed)
	default:
		return fmt.Errorf("earlier claim %s still pending: %w", latest.ID, core.ErrAlreadyClaimed)
	}
}

// eligiblePlan scans plans in registration order and returns the first one
// the wallet holds, or "" when it holds none.
func (s *SoulboundService) eligiblePlan(ctx context.Context, wallet string) (string, error) {
	for _, plan := range s.Registry.Plans() {
		h, err := s.Ledger.HoldingBalance(ctx, wallet, plan.MintAddress)
		if err != nil {
			return "", fmt.Errorf("failed to read %s holding: %w", plan.PlanID, err)
		}
		if h.Amount > 0 {
			return plan.PlanID, nil
		}
	}
	return "", nil
}
