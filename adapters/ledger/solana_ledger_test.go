package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	unknownSignature = `{"context":{"slot":1},"value":[null]}`
	testBlockhash    = "DjQ4csyDJ9ZQvNNbK838ATs5UrqMq8s4Pd5i1ts22HAQ"
)

// rpcStub answers JSON-RPC calls with canned results or errors per method
type rpcStub struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   map[string]int
	params  map[string]json.RawMessage
}

func newRPCStub(t *testing.T) (*rpcStub, string) {
	t.Helper()
	stub := &rpcStub{
		results: map[string]string{"getSignatureStatuses": unknownSignature},
		errors:  map[string]string{},
		calls:   map[string]int{},
		params:  map[string]json.RawMessage{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stub.mu.Lock()
		result, ok := stub.results[req.Method]
		rpcErr, failed := stub.errors[req.Method]
		stub.calls[req.Method]++
		stub.params[req.Method] = req.Params
		stub.mu.Unlock()
		if !ok {
			result = "null"
		}

		w.Header().Set("Content-Type", "application/json")
		if failed {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":` + rpcErr + `}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func (s *rpcStub) set(method, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[method] = result
}

func (s *rpcStub) fail(method string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[method] = fmt.Sprintf(`{"code":%d,"message":%q}`, code, message)
}

func (s *rpcStub) lastParams(method string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.params[method])
}

func (s *rpcStub) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func signatureStatus(confirmation string, failed bool) string {
	errField := "null"
	if failed {
		errField = `{"InstructionError":[0,"Custom"]}`
	}
	return `{"context":{"slot":10},"value":[{"slot":9,"confirmations":null,"err":` + errField +
		`,"confirmationStatus":"` + confirmation + `"}]}`
}

func newTestSolanaLedger(t *testing.T, url, commitment string) *SolanaLedger {
	t.Helper()
	logger, _ := test.NewNullLogger()
	l, err := NewSolanaLedger(SolanaConfig{
		RPCURL:       url,
		Commitment:   commitment,
		PollInterval: 10 * time.Millisecond,
	}, types.NewAccount(), logger)
	require.NoError(t, err)
	return l.(*SolanaLedger)
}

func TestSolanaHoldingBalance(t *testing.T) {
	stub, url := newRPCStub(t)
	l := newTestSolanaLedger(t, url, "finalized")
	ctx := context.Background()

	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[amountOffset:amountEnd], 7)
	stub.set("getAccountInfo", `{"context":{"slot":10},"value":{"data":["`+base64.StdEncoding.EncodeToString(data)+
		`","base64"],"executable":false,"lamports":2039280,"owner":"`+DefaultTokenProgram+`","rentEpoch":0}}`)

	holding, err := l.HoldingBalance(ctx, wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, core.Holding{Exists: true, Amount: 7}, holding)
	assert.Contains(t, stub.lastParams("getAccountInfo"), `"commitment":"finalized"`)

	_, err = l.HoldingBalance(ctx, "not-a-wallet", mint)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	stub.set("getAccountInfo", `{"context":{"slot":10},"value":null}`)
	holding, err = l.HoldingBalance(ctx, wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, core.Holding{}, holding)
}

func TestSolanaHoldingBalanceReadsAtLedgerCommitment(t *testing.T) {
	stub, url := newRPCStub(t)
	l := newTestSolanaLedger(t, url, "confirmed")
	stub.set("getAccountInfo", `{"context":{"slot":10},"value":null}`)

	_, err := l.HoldingBalance(context.Background(), wallet, mint)
	require.NoError(t, err)
	assert.Contains(t, stub.lastParams("getAccountInfo"), `"commitment":"confirmed"`)
}

func TestSolanaStatusRespectsCommitment(t *testing.T) {
	stub, url := newRPCStub(t)
	finalized := newTestSolanaLedger(t, url, "finalized")
	confirmed := newTestSolanaLedger(t, url, "confirmed")
	ctx := context.Background()

	sig := core.SentTx{ID: "sig"}

	status, err := finalized.Status(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, status, "unknown signature")
	assert.Contains(t, stub.lastParams("getSignatureStatuses"), `"searchTransactionHistory":true`)

	stub.set("getSignatureStatuses", signatureStatus("confirmed", false))
	status, _ = finalized.Status(ctx, sig)
	assert.Equal(t, core.TxPending, status)
	status, _ = confirmed.Status(ctx, sig)
	assert.Equal(t, core.TxFinalized, status)

	stub.set("getSignatureStatuses", signatureStatus("finalized", false))
	status, _ = finalized.Status(ctx, sig)
	assert.Equal(t, core.TxFinalized, status)

	stub.set("getSignatureStatuses", signatureStatus("confirmed", true))
	status, _ = finalized.Status(ctx, sig)
	assert.Equal(t, core.TxFailed, status)
}

func TestSolanaStatusExpiresDroppedTransaction(t *testing.T) {
	stub, url := newRPCStub(t)
	l := newTestSolanaLedger(t, url, "finalized")
	ctx := context.Background()

	// without a bound the ledger cannot tell dropped from slow
	status, err := l.Status(ctx, core.SentTx{ID: "sig"})
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, status)
	assert.Zero(t, stub.count("getBlockHeight"))

	dropped := core.SentTx{ID: "sig", LastValidBlock: 100}

	stub.set("getBlockHeight", "100")
	status, err = l.Status(ctx, dropped)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, status, "still valid at its last valid block")

	stub.set("getBlockHeight", "101")
	status, err = l.Status(ctx, dropped)
	require.NoError(t, err)
	assert.Equal(t, core.TxFailed, status)
	assert.Contains(t, stub.lastParams("getBlockHeight"), `"commitment":"finalized"`)

	err = l.AwaitFinality(ctx, dropped)
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)

	// a transaction that landed is never reported as expired
	stub.set("getSignatureStatuses", signatureStatus("finalized", false))
	status, _ = l.Status(ctx, dropped)
	assert.Equal(t, core.TxFinalized, status)

	stub.fail("getBlockHeight", -32000, "node unhealthy")
	stub.set("getSignatureStatuses", unknownSignature)
	status, err = l.Status(ctx, dropped)
	assert.Error(t, err)
	assert.Equal(t, core.TxPending, status)
}

func newSubmittingLedger(t *testing.T) (*rpcStub, *SolanaLedger) {
	t.Helper()
	stub, url := newRPCStub(t)
	logger, _ := test.NewNullLogger()
	l, err := NewSolanaLedger(SolanaConfig{
		RPCURL:       url,
		PollInterval: 10 * time.Millisecond,
		SendRetries:  2,
	}, types.NewAccount(), logger)
	require.NoError(t, err)
	stub.set("getLatestBlockhash", `{"context":{"slot":1},"value":{"blockhash":"`+testBlockhash+`","lastValidBlockHeight":100}}`)
	return stub, l.(*SolanaLedger)
}

func mintOps() []core.Operation {
	return []core.Operation{
		{Kind: core.OpCreateHolding, Owner: wallet, Mint: mint},
		{Kind: core.OpMint, Owner: wallet, Mint: mint, Amount: 1},
	}
}

func TestSolanaSubmit(t *testing.T) {
	stub, l := newSubmittingLedger(t)
	ctx := context.Background()

	stub.set("sendTransaction", `"sig"`)
	sent, err := l.Submit(ctx, mintOps())
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, uint64(100), sent.LastValidBlock)
	assert.Equal(t, 1, stub.count("sendTransaction"))
}

func TestSolanaSubmitFailedSendsStayInFlightUntilExpiry(t *testing.T) {
	stub, l := newSubmittingLedger(t)
	ctx := context.Background()
	stub.fail("sendTransaction", -32005, "Node is behind by 42 slots")

	// the blockhash is still valid so the transaction may yet land
	stub.set("getBlockHeight", "90")
	sent, err := l.Submit(ctx, mintOps())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), sent.LastValidBlock)
	assert.Equal(t, 2, stub.count("sendTransaction"))

	stub.set("getBlockHeight", "150")
	_, err = l.Submit(ctx, mintOps())
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)
}

func TestSolanaSubmitPreflightRejection(t *testing.T) {
	stub, l := newSubmittingLedger(t)
	stub.fail("sendTransaction", preflightFailureCode, "Transaction simulation failed: Error processing Instruction 1")

	_, err := l.Submit(context.Background(), mintOps())
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)
	assert.Equal(t, 1, stub.count("sendTransaction"), "a rejected transaction is not re-sent")
	assert.Zero(t, stub.count("getSignatureStatuses"))
}

func TestSolanaAwaitFinality(t *testing.T) {
	stub, url := newRPCStub(t)
	l := newTestSolanaLedger(t, url, "finalized")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sig := core.SentTx{ID: "sig"}
	err := l.AwaitFinality(ctx, sig)
	assert.ErrorIs(t, err, core.ErrLedgerTimeout)
	assert.Greater(t, stub.count("getSignatureStatuses"), 1, "polls until the deadline")

	stub.set("getSignatureStatuses", signatureStatus("finalized", true))
	err = l.AwaitFinality(context.Background(), sig)
	assert.ErrorIs(t, err, core.ErrLedgerSubmissionFailed)

	stub.set("getSignatureStatuses", signatureStatus("finalized", false))
	assert.NoError(t, l.AwaitFinality(context.Background(), sig))
}

func TestSolanaAuthorityBalance(t *testing.T) {
	stub, url := newRPCStub(t)
	l := newTestSolanaLedger(t, url, "")
	stub.set("getBalance", `{"context":{"slot":10},"value":5000000000}`)

	lamports, err := l.AuthorityBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), lamports)
}

func TestNewSolanaLedgerValidatesConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewSolanaLedger(SolanaConfig{}, types.NewAccount(), logger)
	assert.Error(t, err)
	_, err = NewSolanaLedger(SolanaConfig{RPCURL: "http://x", Commitment: "processed"}, types.NewAccount(), logger)
	assert.Error(t, err)
	_, err = NewSolanaLedger(SolanaConfig{RPCURL: "http://x", TokenProgram: "bogus"}, types.NewAccount(), logger)
	assert.Error(t, err)
}

func TestIsAccountMissing(t *testing.T) {
	assert.True(t, isAccountMissing(errors.New("rpc response error: could not find account")))
	assert.True(t, isAccountMissing(errors.New("Account not found")))
	assert.False(t, isAccountMissing(errors.New("connection refused")))
	assert.False(t, isAccountMissing(fmt.Errorf("not found: %w", context.DeadlineExceeded)))
}
