package ports

import (
	"context"

	"github.com/layer-3/planmint/core"
)

// EventPublisher fans out confirmed issuance events and audit findings to other consumers
type EventPublisher interface {
	PublishIssuance(ctx context.Context, entry core.EventLogEntry) error
	PublishAuditFinding(ctx context.Context, finding core.AuditFinding) error
}

// EventLog is the append-only durable audit record
type EventLog interface {
	// Append returns only after the entry is durable. An entry whose type and
	// first transaction id are already recorded is refused with
	// core.ErrEventRecorded.
	Append(ctx context.Context, entry core.EventLogEntry) error

	// Recorded reports whether an entry of typ exists for txID.
	Recorded(ctx context.Context, typ core.EventType, txID string) (bool, error)

	// Entries lists entries in append order, optionally restricted to one type.
	Entries(ctx context.Context, typ core.EventType) ([]core.EventLogEntry, error)
}
