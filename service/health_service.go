package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/layer-3/planmint/internal/metrics"
	"github.com/layer-3/planmint/ports"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const lamportsPerSolExp = -9

// Health is the issuing authority as seen by the ledger
type Health struct {
	Authority  string
	BalanceSol decimal.Decimal
}

// HealthService reports and periodically logs the issuing authority balance
type HealthService struct {
	ledger ports.Ledger
	logger logrus.FieldLogger
}

// NewHealthService creates a new health service
func NewHealthService(ledger ports.Ledger, logger logrus.FieldLogger) *HealthService {
	return &HealthService{ledger: ledger, logger: logger.WithField("component", "heartbeat")}
}

// Check reads the authority balance
func (s *HealthService) Check(ctx context.Context) (Health, error) {
	lamports, err := s.ledger.AuthorityBalance(ctx)
	if err != nil {
		return Health{Authority: s.ledger.Authority()}, fmt.Errorf("failed to read authority balance: %w", err)
	}
	sol := LamportsToSol(lamports)
	metrics.AuthorityBalance.Set(sol.InexactFloat64())
	return Health{Authority: s.ledger.Authority(), BalanceSol: sol}, nil
}

// Run logs a heartbeat every interval until ctx is done
func (s *HealthService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			h, err := s.Check(checkCtx)
			cancel()
			if err != nil {
				s.logger.WithError(err).Warn("heartbeat: authority balance unavailable")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"authority": h.Authority,
				"sol":       h.BalanceSol.String(),
			}).Info("heartbeat")
		}
	}
}

// LamportsToSol converts a lamport amount to SOL without rounding
func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), lamportsPerSolExp)
}
