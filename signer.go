package planmint

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/planmint/core"
	"github.com/mr-tron/base58"
)

// WalletSigner signs request messages on behalf of one wallet
type WalletSigner struct {
	key ed25519.PrivateKey
	now func() time.Time
}

// NewWalletSigner wraps an Ed25519 private key
func NewWalletSigner(key ed25519.PrivateKey) *WalletSigner {
	return &WalletSigner{key: key, now: time.Now}
}

// ParseWalletSigner accepts a 64-byte secret key as a JSON byte array or
// base58, the two forms wallet exports use.
func ParseWalletSigner(secret string) (*WalletSigner, error) {
	secret = strings.TrimSpace(secret)

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidKey)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("byte %d out of range: %w", i, ErrInvalidKey)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidKey)
		}
		raw = decoded
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key is %d bytes, want %d: %w", len(raw), ed25519.PrivateKeySize, ErrInvalidKey)
	}
	return NewWalletSigner(ed25519.PrivateKey(raw)), nil
}

// Address is the wallet's base58 public key
func (s *WalletSigner) Address() string {
	return base58.Encode(s.key.Public().(ed25519.PublicKey))
}

// Sign returns the base58 detached signature over message
func (s *WalletSigner) Sign(message string) string {
	return base58.Encode(ed25519.Sign(s.key, []byte(message)))
}

func (s *WalletSigner) MintRequest(plan string, quantity int) MintRequest {
	msg := core.IssueMessage(quantity, plan, s.Address(), s.now())
	return MintRequest{
		UserPubkey: s.Address(),
		Plan:       plan,
		Message:    msg,
		Signature:  s.Sign(msg),
		Quantity:   quantity,
	}
}

func (s *WalletSigner) BurnRequest(plan string) BurnRequest {
	msg := core.BurnMessage(plan, s.Address(), s.now())
	return BurnRequest{
		UserPubkey: s.Address(),
		Plan:       plan,
		Message:    msg,
		Signature:  s.Sign(msg),
	}
}

func (s *WalletSigner) SoulboundRequest() SoulboundRequest {
	msg := core.SoulboundMessage(s.Address(), s.now())
	return SoulboundRequest{
		UserPubkey: s.Address(),
		Message:    msg,
		Signature:  s.Sign(msg),
	}
}
