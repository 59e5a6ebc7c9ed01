package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
)

// LoadAuthority restores the issuing authority keypair from secret, which is
// either a solana-keygen JSON array of 64 bytes or the base58 encoding of the
// same bytes.
func LoadAuthority(secret string) (types.Account, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return types.Account{}, fmt.Errorf("authority secret is empty")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return types.Account{}, fmt.Errorf("authority secret is not a json int array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return types.Account{}, fmt.Errorf("authority secret byte out of range at %d: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return types.Account{}, fmt.Errorf("authority secret is neither json nor base58: %w", err)
		}
		raw = decoded
	}

	if len(raw) != ed25519.PrivateKeySize {
		return types.Account{}, fmt.Errorf("unexpected authority secret length: got %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	acc, err := types.AccountFromBytes(raw)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to restore authority: %w", err)
	}
	return acc, nil
}

// LoadAuthorityFile reads a solana-keygen keypair file.
func LoadAuthorityFile(path string) (types.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to read authority keypair: %w", err)
	}
	return LoadAuthority(string(data))
}
