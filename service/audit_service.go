package service

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/logging"
	"github.com/layer-3/planmint/internal/metrics"
	"github.com/layer-3/planmint/ports"
	"github.com/sirupsen/logrus"
)

// AuditReport summarizes one audit run
type AuditReport struct {
	Checked  int
	Released int // no longer hold the soulbound token
	Errors   int
	Flagged  []core.AuditFinding
}

// AuditService finds soulbound holders that no longer hold any plan token.
// It only reads from the ledger.
type AuditService struct {
	registry  *core.Registry
	ledger    ports.Ledger
	eventLog  ports.EventLog
	publisher ports.EventPublisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewAuditService creates a new audit service; publisher may be nil
func NewAuditService(registry *core.Registry, ledger ports.Ledger, eventLog ports.EventLog, publisher ports.EventPublisher, logger logrus.FieldLogger) *AuditService {
	return &AuditService{
		registry:  registry,
		ledger:    ledger,
		eventLog:  eventLog,
		publisher: publisher,
		logger:    logger.WithField("component", "audit"),
		now:       time.Now,
	}
}

// Audit checks every wallet that was ever granted the soulbound token
func (s *AuditService) Audit(ctx context.Context) (AuditReport, error) {
	entries, err := s.eventLog.Entries(ctx, core.EventSoulboundMint)
	if err != nil {
		return AuditReport{}, fmt.Errorf("failed to read soulbound grants: %w", err)
	}

	var report AuditReport
	seen := make(map[string]bool, len(entries))
	soulbound := s.registry.SoulboundMint()

	for _, e := range entries {
		if seen[e.Wallet] {
			continue
		}
		seen[e.Wallet] = true
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		log := s.logger.WithField("wallet", logging.MaskShort(e.Wallet))
		flagged, held, err := s.check(ctx, e.Wallet, soulbound)
		if err != nil {
			report.Errors++
			log.WithError(err).Warn("failed to audit wallet")
			continue
		}
		if !held {
			report.Released++
			continue
		}
		if !flagged {
			continue
		}

		finding := core.AuditFinding{Wallet: e.Wallet, SoulboundMint: soulbound, CheckedAt: s.now().UTC()}
		report.Flagged = append(report.Flagged, finding)
		log.Warn("soulbound holder has no plan token")
		if s.publisher != nil {
			if err := s.publisher.PublishAuditFinding(ctx, finding); err != nil {
				log.WithError(err).Warn("failed to publish audit finding")
			}
		}
	}

	metrics.AuditFlagged.Set(float64(len(report.Flagged)))
	s.logger.WithFields(logrus.Fields{
		"checked":  report.Checked,
		"flagged":  len(report.Flagged),
		"released": report.Released,
		"errors":   report.Errors,
	}).Info("audit finished")
	return report, nil
}

// check reports whether wallet still holds the soulbound token and, if so,
// whether it should be flagged for holding no plan token
func (s *AuditService) check(ctx context.Context, wallet, soulbound string) (flagged, held bool, err error) {
	h, err := s.ledger.HoldingBalance(ctx, wallet, soulbound)
	if err != nil {
		return false, false, err
	}
	if h.Amount == 0 {
		return false, false, nil
	}
	for _, plan := range s.registry.Plans() {
		ph, err := s.ledger.HoldingBalance(ctx, wallet, plan.MintAddress)
		if err != nil {
			return false, true, err
		}
		if ph.Amount > 0 {
			return false, true, nil
		}
	}
	return true, true, nil
}
