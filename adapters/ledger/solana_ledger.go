package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// token account layout: mint(32) owner(32) amount(u64 LE)
const (
	amountOffset = 64
	amountEnd    = amountOffset + 8
)

// JSON-RPC error code for a transaction that failed preflight simulation
const preflightFailureCode = -32002

// SolanaConfig configures the RPC-backed ledger
type SolanaConfig struct {
	RPCURL       string
	Commitment   string
	TokenProgram string
	PollInterval time.Duration
	SendRetries  uint
}

// SolanaLedger submits token instructions signed by the issuing authority
type SolanaLedger struct {
	rpc          *client.Client
	authority    types.Account
	tokenProgram common.PublicKey
	commitment   rpc.Commitment
	pollInterval time.Duration
	sendRetries  uint
	logger       logrus.FieldLogger
}

// NewSolanaLedger creates a ledger talking to cfg.RPCURL
func NewSolanaLedger(cfg SolanaConfig, authority types.Account, logger logrus.FieldLogger) (ports.Ledger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	program := cfg.TokenProgram
	if program == "" {
		program = DefaultTokenProgram
	}
	tokenProgram, err := ParsePublicKey(program)
	if err != nil {
		return nil, fmt.Errorf("token program: %w", err)
	}

	commitment := rpc.CommitmentFinalized
	switch strings.ToLower(cfg.Commitment) {
	case "", "finalized":
	case "confirmed":
		commitment = rpc.CommitmentConfirmed
	default:
		return nil, fmt.Errorf("unsupported commitment %q", cfg.Commitment)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	retries := cfg.SendRetries
	if retries == 0 {
		retries = 3
	}

	return &SolanaLedger{
		rpc:          client.NewClient(cfg.RPCURL),
		authority:    authority,
		tokenProgram: tokenProgram,
		commitment:   commitment,
		pollInterval: poll,
		sendRetries:  retries,
		logger:       logger.WithField("component", "solana-ledger"),
	}, nil
}

func (l *SolanaLedger) Authority() string {
	return l.authority.PublicKey.ToBase58()
}

func (l *SolanaLedger) AuthorityBalance(ctx context.Context) (uint64, error) {
	lamports, err := l.rpc.GetBalance(ctx, l.Authority())
	if err != nil {
		return 0, fmt.Errorf("failed to get authority balance: %w", err)
	}
	return lamports, nil
}

func (l *SolanaLedger) HoldingBalance(ctx context.Context, owner, mint string) (core.Holding, error) {
	ownerKey, err := ParsePublicKey(owner)
	if err != nil {
		return core.Holding{}, fmt.Errorf("%s: %w", err, core.ErrInvalidRequest)
	}
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return core.Holding{}, err
	}
	ata, err := HoldingAddress(ownerKey, mintKey, l.tokenProgram)
	if err != nil {
		return core.Holding{}, err
	}

	info, err := l.rpc.GetAccountInfoWithConfig(ctx, ata.ToBase58(), client.GetAccountInfoConfig{
		Commitment: l.commitment,
	})
	if err != nil {
		if isAccountMissing(err) {
			return core.Holding{}, nil
		}
		return core.Holding{}, fmt.Errorf("failed to read holding account: %w", err)
	}
	if len(info.Data) == 0 {
		return core.Holding{}, nil
	}
	if len(info.Data) < amountEnd {
		return core.Holding{}, fmt.Errorf("holding account %s has unexpected size %d", ata.ToBase58(), len(info.Data))
	}
	return core.Holding{
		Exists: true,
		Amount: binary.LittleEndian.Uint64(info.Data[amountOffset:amountEnd]),
	}, nil
}

// Submit signs once and re-sends the identical transaction on transport
// failures, so every attempt carries the same transaction id. When every send
// fails the transaction may still have reached the cluster, so it is reported
// as submitted unless it provably cannot land.
func (l *SolanaLedger) Submit(ctx context.Context, ops []core.Operation) (core.SentTx, error) {
	if len(ops) == 0 {
		return core.SentTx{}, fmt.Errorf("empty submission")
	}
	ixs, err := buildInstructions(l.authority.PublicKey, l.tokenProgram, ops)
	if err != nil {
		return core.SentTx{}, err
	}

	latest, err := l.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return core.SentTx{}, fmt.Errorf("failed to get latest blockhash: %v: %w", err, core.ErrLedgerSubmissionFailed)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        l.authority.PublicKey,
			RecentBlockhash: latest.Blockhash,
			Instructions:    ixs,
		}),
		Signers: []types.Account{l.authority},
	})
	if err != nil {
		return core.SentTx{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	sent := core.SentTx{
		ID:             base58.Encode(tx.Signatures[0]),
		LastValidBlock: latest.LatestValidBlockHeight,
	}
	log := l.logger.WithFields(logrus.Fields{"txid": sent.ID, "instructions": len(ixs)})

	var (
		accepted bool
		attempts int
		rejected error
		sendErr  error
	)
	_ = retry.Retry(func(attempt uint) error {
		if ctx.Err() != nil {
			return nil
		}
		attempts++
		_, err := l.rpc.SendTransaction(ctx, tx)
		switch {
		case err == nil:
			accepted = true
			return nil
		case isPreflightRejection(err):
			// simulation failed, the node did not forward it
			rejected = err
			return nil
		}
		sendErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("send transaction failed")
		return err
	}, strategy.Limit(l.sendRetries), strategy.Backoff(backoff.BinaryExponential(200*time.Millisecond)))

	switch {
	case accepted:
		log.Debug("transaction sent")
		return sent, nil
	case rejected != nil:
		return core.SentTx{}, fmt.Errorf("transaction rejected: %v: %w", rejected, core.ErrLedgerSubmissionFailed)
	case attempts == 0:
		return core.SentTx{}, fmt.Errorf("submission cancelled: %v: %w", ctx.Err(), core.ErrLedgerSubmissionFailed)
	}

	status, err := l.Status(ctx, sent)
	if err == nil && status == core.TxFailed {
		return core.SentTx{}, fmt.Errorf("%v: %w", sendErr, core.ErrLedgerSubmissionFailed)
	}
	log.WithError(sendErr).Warn("every send failed, following the transaction until its blockhash expires")
	return sent, nil
}

func (l *SolanaLedger) AwaitFinality(ctx context.Context, tx core.SentTx) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		status, err := l.Status(ctx, tx)
		if err != nil {
			l.logger.WithError(err).WithField("txid", tx.ID).Warn("signature status poll failed")
		}
		switch status {
		case core.TxFinalized:
			return nil
		case core.TxFailed:
			return fmt.Errorf("transaction %s failed or expired: %w", tx.ID, core.ErrLedgerSubmissionFailed)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not %s in time: %w", tx.ID, l.commitment, core.ErrLedgerTimeout)
		case <-ticker.C:
		}
	}
}

// Status searches the full signature history. A transaction that is unknown
// once the finalized block height has passed its last valid block can no
// longer land and is reported as failed.
func (l *SolanaLedger) Status(ctx context.Context, tx core.SentTx) (core.TxStatus, error) {
	status, err := l.lookup(ctx, tx.ID)
	if err != nil {
		return core.TxPending, err
	}
	if status == nil {
		expired, err := l.expired(ctx, tx)
		if err != nil || !expired {
			return core.TxPending, err
		}
		// it may have landed between the two calls
		if status, err = l.lookup(ctx, tx.ID); err != nil {
			return core.TxPending, err
		}
		if status == nil {
			return core.TxFailed, nil
		}
	}

	if status.Err != nil {
		return core.TxFailed, nil
	}
	if status.ConfirmationStatus == nil {
		return core.TxPending, nil
	}
	switch *status.ConfirmationStatus {
	case rpc.CommitmentFinalized:
		return core.TxFinalized, nil
	case rpc.CommitmentConfirmed:
		if l.commitment == rpc.CommitmentConfirmed {
			return core.TxFinalized, nil
		}
	}
	return core.TxPending, nil
}

func (l *SolanaLedger) lookup(ctx context.Context, txID string) (*rpc.SignatureStatus, error) {
	statuses, err := l.rpc.GetSignatureStatusesWithConfig(ctx, []string{txID}, client.GetSignatureStatusesConfig{
		SearchTransactionHistory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}

// expired reports whether the finalized chain has moved past tx's last valid block
func (l *SolanaLedger) expired(ctx context.Context, tx core.SentTx) (bool, error) {
	if tx.LastValidBlock == 0 {
		return false, nil
	}
	res, err := l.rpc.RpcClient.GetBlockHeightWithConfig(ctx, rpc.GetBlockHeightConfig{Commitment: rpc.CommitmentFinalized})
	if err == nil {
		err = res.GetError()
	}
	if err != nil {
		return false, fmt.Errorf("failed to get block height: %w", err)
	}
	return res.Result > tx.LastValidBlock, nil
}

// isPreflightRejection matches the node's "Transaction simulation failed" error
func isPreflightRejection(err error) bool {
	var rpcErr *rpc.JsonRpcError
	return errors.As(err, &rpcErr) && rpcErr.Code == preflightFailureCode
}

func isAccountMissing(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account does not exist")
}
