package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAuthority(t *testing.T) {
	acc := types.NewAccount()
	raw := []byte(acc.PrivateKey)

	ints := make([]int, len(raw))
	for i, b := range raw {
		ints[i] = int(b)
	}
	asJSON, err := json.Marshal(ints)
	require.NoError(t, err)

	fromJSON, err := LoadAuthority(string(asJSON))
	require.NoError(t, err)
	assert.Equal(t, acc.PublicKey.ToBase58(), fromJSON.PublicKey.ToBase58())

	fromBase58, err := LoadAuthority(base58.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, acc.PublicKey.ToBase58(), fromBase58.PublicKey.ToBase58())

	path := filepath.Join(t.TempDir(), "authority.json")
	require.NoError(t, os.WriteFile(path, asJSON, 0o600))
	fromFile, err := LoadAuthorityFile(path)
	require.NoError(t, err)
	assert.Equal(t, acc.PublicKey.ToBase58(), fromFile.PublicKey.ToBase58())
}

func TestLoadAuthorityRejectsBadSecrets(t *testing.T) {
	for name, secret := range map[string]string{
		"empty":        "",
		"short json":   "[1,2,3]",
		"out of range": "[256]",
		"bad json":     "[1,2",
		"bad base58":   "0OIl",
		"short base58": base58.Encode([]byte{1, 2, 3}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadAuthority(secret)
			assert.Error(t, err)
		})
	}
}
