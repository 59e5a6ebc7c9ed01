package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planmint_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planmint_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Issuance
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planmint_operations_total",
			Help: "Issuance operations by action and result code",
		},
		[]string{"action", "result"},
	)

	FinalityWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planmint_finality_wait_seconds",
			Help:    "Time spent waiting for submitted transactions to finalize",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"action"},
	)

	LedgerSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planmint_ledger_submissions_total",
			Help: "Transactions submitted to the ledger",
		},
		[]string{"action", "outcome"},
	)

	LockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planmint_lock_wait_seconds",
		Help:    "Time spent waiting for a wallet and mint lock",
		Buckets: prometheus.DefBuckets,
	})

	EventLogAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planmint_event_log_appends_total",
			Help: "Event log append attempts by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	EventLogCorruptLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planmint_event_log_corrupt_lines_total",
		Help: "Event log lines skipped because they did not parse",
	})

	// Authority
	AuthorityBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planmint_authority_balance_sol",
		Help: "Issuing authority balance in SOL",
	})

	// Audit
	AuditFlagged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planmint_audit_flagged_wallets",
		Help: "Soulbound holders without a plan token in the last audit run",
	})
)
