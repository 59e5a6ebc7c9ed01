package core

import (
	"fmt"
	"strings"
)

// Action is the intent a signed request authorizes.
type Action string

const (
	ActionIssue          Action = "ISSUE"
	ActionBurn           Action = "BURN"
	ActionClaimSoulbound Action = "CLAIM_SOULBOUND"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

// AuthorizedRequest is built per HTTP call and discarded after verification.
type AuthorizedRequest struct {
	WalletAddress string
	Action        Action
	PlanID        string // ISSUE and BURN only
	Quantity      int    // ISSUE only
	Message       string // exact signed text
	Signature     string // transport-encoded detached signature
}

// Validate checks the request shape against the registry. It performs no
// cryptographic work and touches no external state.
func (r AuthorizedRequest) Validate(reg *Registry) error {
	if strings.TrimSpace(r.WalletAddress) == "" {
		return fmt.Errorf("wallet address is required: %w", ErrInvalidRequest)
	}
	if r.Message == "" || r.Signature == "" {
		return fmt.Errorf("message and signature are required: %w", ErrInvalidRequest)
	}

	switch r.Action {
	case ActionIssue:
		if r.Quantity < MinQuantity || r.Quantity > MaxQuantity {
			return fmt.Errorf("quantity %d outside [%d,%d]: %w", r.Quantity, MinQuantity, MaxQuantity, ErrInvalidRequest)
		}
		fallthrough
	case ActionBurn:
		if r.PlanID == "" {
			return fmt.Errorf("plan is required: %w", ErrInvalidRequest)
		}
		if _, ok := reg.Plan(r.PlanID); !ok {
			return fmt.Errorf("unknown plan %q: %w", r.PlanID, ErrInvalidRequest)
		}
	case ActionClaimSoulbound:
	default:
		return fmt.Errorf("unknown action %q: %w", r.Action, ErrInvalidRequest)
	}

	return nil
}
