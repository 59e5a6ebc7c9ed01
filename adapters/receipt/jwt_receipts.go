package receipt

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
)

const AudienceReceipt = "planmint:receipt"

// JWTReceipts implements the Receipts interface with EdDSA-signed JWTs
type JWTReceipts struct {
	signKey ed25519.PrivateKey
	issuer  string
	ttl     time.Duration
}

// NewJWTReceipts creates receipts signed by signKey and valid for ttl
func NewJWTReceipts(signKey ed25519.PrivateKey, issuer string, ttl time.Duration) ports.Receipts {
	return &JWTReceipts{signKey: signKey, issuer: issuer, ttl: ttl}
}

// SubmissionToReceipt converts a Submission to a signed receipt
func (j *JWTReceipts) SubmissionToReceipt(sub *core.Submission) (string, error) {
	issued := sub.CreatedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	claims := ReceiptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   sub.Wallet,
			ID:        sub.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(j.ttl)),
			Audience:  jwt.ClaimStrings{AudienceReceipt},
		},
		Action:     string(sub.Action),
		PlanID:     sub.PlanID,
		Mint:       sub.Mint,
		Quantity:   sub.Quantity,
		NeedsClose: sub.NeedsClose,
		TxIDs:      sub.TransactionIDs,
		LastValid:  sub.LastValidBlock,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)

	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt: %w", err)
	}

	return signed, nil
}

// ReceiptToSubmission verifies a receipt and rebuilds the pending submission it describes
func (j *JWTReceipts) ReceiptToSubmission(receipt string) (*core.Submission, error) {
	token, err := jwt.ParseWithClaims(receipt, &ReceiptClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signKey.Public(), nil
	}, jwt.WithAudience(AudienceReceipt), jwt.WithIssuer(j.issuer))

	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, core.ErrInvalidReceipt)
	}

	if !token.Valid {
		return nil, core.ErrInvalidReceipt
	}

	claims, ok := token.Claims.(*ReceiptClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type: %w", core.ErrInvalidReceipt)
	}
	if claims.ID == "" || len(claims.TxIDs) == 0 {
		return nil, fmt.Errorf("receipt names no transaction: %w", core.ErrInvalidReceipt)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return &core.Submission{
		ID:             claims.ID,
		Action:         core.Action(claims.Action),
		Wallet:         claims.Subject,
		PlanID:         claims.PlanID,
		Mint:           claims.Mint,
		Quantity:       claims.Quantity,
		NeedsClose:     claims.NeedsClose,
		TransactionIDs: claims.TxIDs,
		LastValidBlock: claims.LastValid,
		Status:         core.SubmissionPending,
		CreatedAt:      issuedAt,
		UpdatedAt:      issuedAt,
	}, nil
}
