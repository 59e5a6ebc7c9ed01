package ledger

import (
	"testing"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token2022 = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"

func TestParsePublicKey(t *testing.T) {
	key, err := ParsePublicKey(wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, key.ToBase58())

	_, err = ParsePublicKey("short")
	assert.Error(t, err)
	_, err = ParsePublicKey("0OIl")
	assert.Error(t, err)
}

func TestHoldingAddressDependsOnTokenProgram(t *testing.T) {
	owner, _ := ParsePublicKey(wallet)
	m, _ := ParsePublicKey(mint)
	classic, _ := ParsePublicKey(DefaultTokenProgram)
	t22, _ := ParsePublicKey(token2022)

	a, err := HoldingAddress(owner, m, classic)
	require.NoError(t, err)
	b, err := HoldingAddress(owner, m, t22)
	require.NoError(t, err)
	again, _ := HoldingAddress(owner, m, classic)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
}

func TestBuildInstructionsUsesConfiguredProgram(t *testing.T) {
	authority := types.NewAccount().PublicKey
	program, _ := ParsePublicKey(token2022)

	ixs, err := buildInstructions(authority, program, []core.Operation{
		{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint},
		{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1},
		{Kind: core.OpBurn, Owner: wallet, Mint: mint, Amount: 1},
		{Kind: core.OpClose, Owner: wallet, Mint: mint},
	})
	require.NoError(t, err)
	require.Len(t, ixs, 4)

	assert.Equal(t, common.SPLAssociatedTokenAccountProgramID, ixs[0].ProgramID)
	assert.Equal(t, []byte{createIdempotent}, ixs[0].Data)
	assert.Equal(t, program, ixs[0].Accounts[5].PubKey)
	assert.True(t, ixs[0].Accounts[0].IsSigner)

	for _, ix := range ixs[1:] {
		assert.Equal(t, program, ix.ProgramID)
	}

	_, err = buildInstructions(authority, program, []core.Operation{{Kind: core.OpMint, Owner: "nope", Mint: mint, Amount: 1}})
	assert.Error(t, err)
}
