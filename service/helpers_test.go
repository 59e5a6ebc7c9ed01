package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/adapters/eventlog"
	"github.com/layer-3/planmint/adapters/ledger"
	"github.com/layer-3/planmint/adapters/lock"
	"github.com/layer-3/planmint/adapters/receipt"
	"github.com/layer-3/planmint/adapters/store"
	"github.com/layer-3/planmint/adapters/verifier"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const (
	mint10GB  = "GXsBcsscLxMRKLgwWWnKkUzuXdEXwr74NiSqJrBs21Mz"
	mint25GB  = "HDtzBt6nvoHLhiV8KLrovhnP4pYesguq89J2vZZbn6kA"
	mint50GB  = "C6is6ajmWgySMA4WpDfccadLf5JweXVufdXexWNrLKKD"
	soulbound = "BGZPPAY2jJ1rgFNhRkHKjPVmxx1VFUisZSo569Pi71Pc"
)

type wallet struct {
	addr string
	key  ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{addr: base58.Encode(pub), key: priv}
}

func (w wallet) sign(msg string) string {
	return base58.Encode(ed25519.Sign(w.key, []byte(msg)))
}

func (w wallet) issue(quantity int, plan string, at time.Time) core.AuthorizedRequest {
	msg := core.IssueMessage(quantity, plan, w.addr, at)
	return core.AuthorizedRequest{WalletAddress: w.addr, PlanID: plan, Quantity: quantity, Message: msg, Signature: w.sign(msg)}
}

func (w wallet) burn(plan string, at time.Time) core.AuthorizedRequest {
	msg := core.BurnMessage(plan, w.addr, at)
	return core.AuthorizedRequest{WalletAddress: w.addr, PlanID: plan, Message: msg, Signature: w.sign(msg)}
}

func (w wallet) claim(at time.Time) core.AuthorizedRequest {
	msg := core.SoulboundMessage(w.addr, at)
	return core.AuthorizedRequest{WalletAddress: w.addr, Message: msg, Signature: w.sign(msg)}
}

type recordingPublisher struct {
	mu       sync.Mutex
	issued   []core.EventLogEntry
	findings []core.AuditFinding
}

func (p *recordingPublisher) PublishIssuance(ctx context.Context, entry core.EventLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, entry)
	return nil
}

func (p *recordingPublisher) PublishAuditFinding(ctx context.Context, finding core.AuditFinding) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findings = append(p.findings, finding)
	return nil
}

type harness struct {
	registry  *core.Registry
	ledger    *ledger.MemoryLedger
	store     ports.SubmissionStore
	eventLog  ports.EventLog
	publisher *recordingPublisher
	deps      Deps
	opts      Options
	issuance  *IssuanceService
	soulbound *SoulboundService
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	registry, err := core.NewRegistry([]core.PlanToken{
		{PlanID: "10GB", MintAddress: mint10GB},
		{PlanID: "25GB", MintAddress: mint25GB},
		{PlanID: "50GB", MintAddress: mint50GB},
	}, soulbound)
	require.NoError(t, err)

	authority := types.NewAccount()
	memLedger := ledger.NewMemoryLedger(authority)

	fileLog, err := eventlog.NewFileLog(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fileLog.Close() })

	logger, _ := test.NewNullLogger()
	publisher := &recordingPublisher{}

	deps := Deps{
		Registry:  registry,
		Verifier:  verifier.NewEd25519Verifier(),
		Ledger:    memLedger,
		Locker:    lock.NewMemoryLocker(),
		Store:     store.NewMemoryStore(0),
		Receipts:  receipt.NewJWTReceipts(authority.PrivateKey, memLedger.Authority(), time.Hour),
		EventLog:  fileLog,
		Publisher: publisher,
		Logger:    logger,
	}

	return &harness{
		registry:  registry,
		ledger:    memLedger,
		store:     deps.Store,
		eventLog:  fileLog,
		publisher: publisher,
		deps:      deps,
		opts:      opts,
		issuance:  NewIssuanceService(deps, opts),
		soulbound: NewSoulboundService(deps, opts),
	}
}

func (h *harness) entries(t *testing.T, typ core.EventType) []core.EventLogEntry {
	t.Helper()
	entries, err := h.eventLog.Entries(context.Background(), typ)
	require.NoError(t, err)
	return entries
}

func (h *harness) balance(t *testing.T, owner, mint string) core.Holding {
	t.Helper()
	holding, err := h.ledger.HoldingBalance(context.Background(), owner, mint)
	require.NoError(t, err)
	return holding
}
