package verifier

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/planmint/ports"
	"github.com/mr-tron/base58"
)

var (
	errBadAddress   = errors.New("address is not a base58 ed25519 public key")
	errBadSignature = errors.New("signature is not a 64-byte ed25519 signature")
)

// Ed25519Verifier checks detached signatures made by Solana wallets
type Ed25519Verifier struct{}

// NewEd25519Verifier creates a new verifier
func NewEd25519Verifier() ports.Verifier {
	return Ed25519Verifier{}
}

// ValidAddress reports whether address decodes to a public key
func (Ed25519Verifier) ValidAddress(address string) bool {
	_, err := DecodePublicKey(address)
	return err == nil
}

// Verify checks signature over the UTF-8 bytes of message. Every failure,
// whatever its cause, yields false.
func (Ed25519Verifier) Verify(address, message, signature string) bool {
	pub, err := DecodePublicKey(address)
	if err != nil {
		return false
	}
	sig, err := DecodeSignature(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

// DecodePublicKey decodes a base58 wallet address
func DecodePublicKey(address string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, errBadAddress
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignature accepts 0x-hex, base58 (wallet adapters) or standard base64.
func DecodeSignature(signature string) ([]byte, error) {
	s := strings.TrimSpace(signature)
	if s == "" {
		return nil, errBadSignature
	}

	if strings.HasPrefix(s, "0x") {
		raw, err := hexutil.Decode(s)
		if err != nil || len(raw) != ed25519.SignatureSize {
			return nil, errBadSignature
		}
		return raw, nil
	}

	if raw, err := base58.Decode(s); err == nil && len(raw) == ed25519.SignatureSize {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == ed25519.SignatureSize {
		return raw, nil
	}
	return nil, errBadSignature
}
