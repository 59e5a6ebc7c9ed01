package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/mr-tron/base58"
)

const (
	memoryStartingLamports = 5_000_000_000
	memoryFeeLamports      = 5_000
	memoryBlockhashWindow  = 150
)

type holdingKey struct {
	owner string
	mint  string
}

type memoryTx struct {
	status    core.TxStatus
	lastValid uint64
	dropped   bool
}

// MemoryLedger is an in-process token ledger used by tests and the memory
// driver. Accepted submissions apply atomically; finality can be held back to
// simulate a slow network.
type MemoryLedger struct {
	mu        sync.Mutex
	authority string
	lamports  uint64
	holdings  map[holdingKey]uint64
	txs       map[string]*memoryTx
	height    uint64
	submits   int

	failSubmit  error
	failOnChain bool
	dropNext    bool
	latency     time.Duration

	held bool
	wake chan struct{}
}

// NewMemoryLedger creates an empty ledger whose authority is account
func NewMemoryLedger(account types.Account) *MemoryLedger {
	return &MemoryLedger{
		authority: account.PublicKey.ToBase58(),
		lamports:  memoryStartingLamports,
		holdings:  make(map[holdingKey]uint64),
		txs:       make(map[string]*memoryTx),
		height:    1,
		wake:      make(chan struct{}),
	}
}

func (l *MemoryLedger) Authority() string {
	return l.authority
}

func (l *MemoryLedger) AuthorityBalance(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lamports, nil
}

func (l *MemoryLedger) HoldingBalance(ctx context.Context, owner, mint string) (core.Holding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, ok := l.holdings[holdingKey{owner, mint}]
	return core.Holding{Exists: ok, Amount: amount}, nil
}

func (l *MemoryLedger) Submit(ctx context.Context, ops []core.Operation) (core.SentTx, error) {
	l.mu.Lock()
	latency := l.latency
	l.mu.Unlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return core.SentTx{}, fmt.Errorf("submission cancelled: %v: %w", ctx.Err(), core.ErrLedgerSubmissionFailed)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++

	if l.failSubmit != nil {
		err := l.failSubmit
		l.failSubmit = nil
		return core.SentTx{}, fmt.Errorf("%v: %w", err, core.ErrLedgerSubmissionFailed)
	}
	if len(ops) == 0 {
		return core.SentTx{}, fmt.Errorf("empty submission")
	}

	next, err := l.apply(ops)
	if err != nil {
		return core.SentTx{}, fmt.Errorf("transaction simulation failed: %v: %w", err, core.ErrLedgerSubmissionFailed)
	}

	sent := core.SentTx{ID: randomSignature(), LastValidBlock: l.height + memoryBlockhashWindow}
	tx := &memoryTx{status: core.TxFinalized, lastValid: sent.LastValidBlock}
	l.txs[sent.ID] = tx

	switch {
	case l.dropNext:
		l.dropNext = false
		tx.status = core.TxPending
		tx.dropped = true
		return sent, nil
	case l.failOnChain:
		l.failOnChain = false
		l.lamports -= memoryFeeLamports
		tx.status = core.TxFailed
		return sent, nil
	}

	l.lamports -= memoryFeeLamports
	for k, v := range next {
		if v < 0 {
			delete(l.holdings, k)
			continue
		}
		l.holdings[k] = uint64(v)
	}
	if l.held {
		tx.status = core.TxPending
	}
	return sent, nil
}

// apply validates ops against the current balances and returns the resulting
// balance of every touched holding; -1 marks a closed account.
func (l *MemoryLedger) apply(ops []core.Operation) (map[holdingKey]int64, error) {
	next := make(map[holdingKey]int64)
	get := func(k holdingKey) (int64, bool) {
		if v, ok := next[k]; ok {
			return v, v >= 0
		}
		v, ok := l.holdings[k]
		if !ok {
			return -1, false
		}
		return int64(v), true
	}

	for _, op := range ops {
		k := holdingKey{op.Owner, op.Mint}
		cur, exists := get(k)
		switch op.Kind {
		case core.OpCreateHolding:
			if !exists {
				next[k] = 0
			}
		case core.OpMint:
			if !exists {
				return nil, fmt.Errorf("mint into missing holding account")
			}
			next[k] = cur + int64(op.Amount)
		case core.OpBurn:
			if !exists || cur < int64(op.Amount) {
				return nil, fmt.Errorf("insufficient funds")
			}
			next[k] = cur - int64(op.Amount)
		case core.OpClose:
			if !exists || cur != 0 {
				return nil, fmt.Errorf("non-native account can only be closed if its balance is zero")
			}
			next[k] = -1
		default:
			return nil, fmt.Errorf("unsupported operation %q", op.Kind)
		}
	}
	return next, nil
}

func (l *MemoryLedger) AwaitFinality(ctx context.Context, sent core.SentTx) error {
	for {
		l.mu.Lock()
		status, ok := l.status(sent.ID)
		wake := l.wake
		l.mu.Unlock()

		switch {
		case !ok:
			return fmt.Errorf("unknown transaction %s: %w", sent.ID, core.ErrLedgerSubmissionFailed)
		case status == core.TxFinalized:
			return nil
		case status == core.TxFailed:
			return fmt.Errorf("transaction %s failed or expired: %w", sent.ID, core.ErrLedgerSubmissionFailed)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not finalized in time: %w", sent.ID, core.ErrLedgerTimeout)
		case <-wake:
		}
	}
}

func (l *MemoryLedger) Status(ctx context.Context, sent core.SentTx) (core.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	status, _ := l.status(sent.ID)
	return status, nil
}

// status must be called with mu held. Unknown ids report pending.
func (l *MemoryLedger) status(id string) (core.TxStatus, bool) {
	tx, ok := l.txs[id]
	if !ok {
		return core.TxPending, false
	}
	if tx.dropped && l.height > tx.lastValid {
		return core.TxFailed, true
	}
	return tx.status, true
}

// Credit adds amount to owner's holding of mint, creating the account.
func (l *MemoryLedger) Credit(owner, mint string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[holdingKey{owner, mint}] += amount
}

// FailNextSubmit makes the next Submit call fail before anything is accepted.
func (l *MemoryLedger) FailNextSubmit(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSubmit = err
}

// FailNextOnChain accepts the next submission but records it as failed.
func (l *MemoryLedger) FailNextOnChain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOnChain = true
}

// DropNext accepts the next submission but never lands it, as when the
// cluster loses a transaction. It fails once its blockhash expires.
func (l *MemoryLedger) DropNext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext = true
}

// AdvanceBlocks moves the block height forward and wakes waiters.
func (l *MemoryLedger) AdvanceBlocks(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	l.broadcast()
}

// SetLatency delays every Submit call.
func (l *MemoryLedger) SetLatency(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency = d
}

// HoldFinality keeps new submissions pending until ReleaseFinality.
func (l *MemoryLedger) HoldFinality() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

// ReleaseFinality finalizes every pending transaction and wakes waiters.
func (l *MemoryLedger) ReleaseFinality() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	for _, tx := range l.txs {
		if tx.status == core.TxPending && !tx.dropped {
			tx.status = core.TxFinalized
		}
	}
	l.broadcast()
}

func (l *MemoryLedger) broadcast() {
	close(l.wake)
	l.wake = make(chan struct{})
}

// SubmitCount reports how many Submit calls reached the ledger.
func (l *MemoryLedger) SubmitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}

func randomSignature() string {
	b := make([]byte, 64)
	_, _ = rand.Read(b)
	return base58.Encode(b)
}
