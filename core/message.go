package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Literal prefixes binding a signed message to one action.
const (
	IssuePrefix     = "I WANT DATA: "
	BurnPrefix      = "BURN REQUEST"
	SoulboundPrefix = "I WANT MY SOULBOUND"
)

// FreshnessWindowMillis bounds how old a signed message may be.
const FreshnessWindowMillis int64 = 120_000

var (
	epochPattern = regexp.MustCompile(`Epoch: (\d+)`)
	issueLine    = regexp.MustCompile(`^I WANT DATA: (\d+)x(.+)$`)
	burnLine     = regexp.MustCompile(`^BURN REQUEST: (.+) NFT$`)
)

// IssueMessage renders the text a wallet signs to request quantity units of plan.
func IssueMessage(quantity int, plan, wallet string, at time.Time) string {
	return fmt.Sprintf("%s%dx%s\n%s\nTime: %s\nEpoch: %d", IssuePrefix, quantity, plan, wallet, at.UTC().Format(time.RFC3339), at.UnixMilli())
}

// BurnMessage renders the text a wallet signs to burn one unit of plan.
func BurnMessage(plan, wallet string, at time.Time) string {
	return fmt.Sprintf("%s: %s NFT\n%s\nTime: %s\nEpoch: %d", BurnPrefix, plan, wallet, at.UTC().Format(time.RFC3339), at.UnixMilli())
}

// SoulboundMessage renders the text a wallet signs to claim the soulbound token.
func SoulboundMessage(wallet string, at time.Time) string {
	return fmt.Sprintf("%s\n%s\nTime: %s\nEpoch: %d", SoulboundPrefix, wallet, at.UTC().Format(time.RFC3339), at.UnixMilli())
}

// ParseEpoch extracts the millisecond timestamp following the "Epoch: " marker.
// The marker must appear exactly once.
func ParseEpoch(message string) (int64, error) {
	matches := epochPattern.FindAllStringSubmatch(message, -1)
	if len(matches) != 1 {
		return 0, fmt.Errorf("expected one epoch marker, found %d: %w", len(matches), ErrInvalidRequest)
	}
	millis, err := strconv.ParseInt(matches[0][1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("epoch marker is not a number: %w", ErrInvalidRequest)
	}
	return millis, nil
}

// CheckFresh rejects messages issued more than FreshnessWindowMillis before now.
// Timestamps in the future are accepted.
func CheckFresh(issuedAtMillis int64, now time.Time) error {
	if now.UnixMilli()-issuedAtMillis > FreshnessWindowMillis {
		return ErrExpired
	}
	return nil
}

// CheckIntent enforces the action-specific message shape. The first line must
// carry the action prefix (and, for ISSUE and BURN, the same plan and quantity
// as the request body); the second line, when present, must name the wallet.
func CheckIntent(r AuthorizedRequest) error {
	lines := strings.Split(r.Message, "\n")
	head := lines[0]

	switch r.Action {
	case ActionIssue:
		m := issueLine.FindStringSubmatch(head)
		if m == nil {
			return fmt.Errorf("message is not an issuance request: %w", ErrUnauthorized)
		}
		if m[1] != strconv.Itoa(r.Quantity) || m[2] != r.PlanID {
			return fmt.Errorf("signed %sx%s does not match %dx%s: %w", m[1], m[2], r.Quantity, r.PlanID, ErrUnauthorized)
		}
	case ActionBurn:
		if !strings.HasPrefix(head, BurnPrefix) {
			return fmt.Errorf("message is not a burn request: %w", ErrUnauthorized)
		}
		m := burnLine.FindStringSubmatch(head)
		if m == nil {
			return fmt.Errorf("burn request does not name a plan: %w", ErrUnauthorized)
		}
		if m[1] != r.PlanID {
			return fmt.Errorf("signed plan %s does not match %s: %w", m[1], r.PlanID, ErrUnauthorized)
		}
	case ActionClaimSoulbound:
		if !strings.HasPrefix(head, SoulboundPrefix) {
			return fmt.Errorf("message is not a soulbound claim: %w", ErrUnauthorized)
		}
	default:
		return fmt.Errorf("unknown action %q: %w", r.Action, ErrInvalidRequest)
	}

	if len(lines) > 1 && strings.TrimSpace(lines[1]) != r.WalletAddress {
		return fmt.Errorf("message names a different wallet: %w", ErrUnauthorized)
	}
	return nil
}
