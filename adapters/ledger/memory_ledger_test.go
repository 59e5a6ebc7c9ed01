package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wallet = "6WCrvPVzPcn6oWsiCgg4PWvgu3X9ytTJqNL39JwHhX8v"
	mint   = "GXsBcsscLxMRKLgwWWnKkUzuXdEXwr74NiSqJrBs21Mz"
)

func TestMemoryLedgerAppliesSubmissionAtomically(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(types.NewAccount())

	sent, err := l.Submit(ctx, []core.Operation{
		{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint},
		{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1},
		{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1},
	})
	require.NoError(t, err)
	assert.NotZero(t, sent.LastValidBlock)
	require.NoError(t, l.AwaitFinality(ctx, sent))

	h, err := l.HoldingBalance(ctx, wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, core.Holding{Exists: true, Amount: 2}, h)

	// burning three must leave the balance untouched
	_, err = l.Submit(ctx, []core.Operation{
		{Kind: core.OpBurn, Owner: wallet, Mint: mint, Amount: 1},
		{Kind: core.OpBurn, Owner: wallet, Mint: mint, Amount: 2},
	})
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)
	h, _ = l.HoldingBalance(ctx, wallet, mint)
	assert.Equal(t, uint64(2), h.Amount)

	_, err = l.Submit(ctx, []core.Operation{
		{Kind: core.OpBurn, Owner: wallet, Mint: mint, Amount: 2},
		{Kind: core.OpClose, Owner: wallet, Mint: mint},
	})
	require.NoError(t, err)
	h, _ = l.HoldingBalance(ctx, wallet, mint)
	assert.False(t, h.Exists)

	lamports, err := l.AuthorityBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(memoryStartingLamports-2*memoryFeeLamports), lamports)
}

func TestMemoryLedgerMintNeedsHoldingAccount(t *testing.T) {
	l := NewMemoryLedger(types.NewAccount())
	_, err := l.Submit(context.Background(), []core.Operation{{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1}})
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)
}

func TestMemoryLedgerHeldFinality(t *testing.T) {
	l := NewMemoryLedger(types.NewAccount())
	l.HoldFinality()

	sent, err := l.Submit(context.Background(), []core.Operation{{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.AwaitFinality(ctx, sent), core.ErrLedgerTimeout)

	status, err := l.Status(context.Background(), sent)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, status)

	done := make(chan error, 1)
	go func() { done <- l.AwaitFinality(context.Background(), sent) }()
	l.ReleaseFinality()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	status, _ = l.Status(context.Background(), sent)
	assert.Equal(t, core.TxFinalized, status)
}

func TestMemoryLedgerFailureHooks(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(types.NewAccount())
	ops := []core.Operation{{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint}}

	l.FailNextSubmit(errors.New("node unreachable"))
	_, err := l.Submit(ctx, ops)
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)

	l.FailNextOnChain()
	sent, err := l.Submit(ctx, ops)
	require.NoError(t, err)
	assert.ErrorIs(t, l.AwaitFinality(ctx, sent), core.ErrLedgerSubmissionFailed)
	h, _ := l.HoldingBalance(ctx, wallet, mint)
	assert.False(t, h.Exists)

	assert.Equal(t, 2, l.SubmitCount())
}

func TestMemoryLedgerDroppedTransactionExpires(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(types.NewAccount())
	ops := []core.Operation{{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint}}

	l.DropNext()
	sent, err := l.Submit(ctx, ops)
	require.NoError(t, err)

	l.ReleaseFinality()
	status, err := l.Status(ctx, sent)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, status)

	done := make(chan error, 1)
	go func() { done <- l.AwaitFinality(ctx, sent) }()
	l.AdvanceBlocks(memoryBlockhashWindow)
	status, _ = l.Status(ctx, sent)
	assert.Equal(t, core.TxPending, status, "still valid at its last valid block")

	l.AdvanceBlocks(1)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by expiry")
	}
	status, _ = l.Status(ctx, sent)
	assert.Equal(t, core.TxFailed, status)

	h, _ := l.HoldingBalance(ctx, wallet, mint)
	assert.False(t, h.Exists)
}
