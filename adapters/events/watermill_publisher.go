package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
)

// Topic suffixes appended to the configured prefix
const (
	TopicIssuance = "issuance"
	TopicAudit    = "audit"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher     message.Publisher
	issuanceTopic string
	auditTopic    string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topicPrefix string) ports.EventPublisher {
	if topicPrefix == "" {
		topicPrefix = "planmint"
	}
	return &WatermillPublisher{
		publisher:     publisher,
		issuanceTopic: topicPrefix + "." + TopicIssuance,
		auditTopic:    topicPrefix + "." + TopicAudit,
	}
}

// PublishIssuance publishes a confirmed event log entry
func (p *WatermillPublisher) PublishIssuance(ctx context.Context, entry core.EventLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(entry.ID, payload)
	msg.Metadata.Set("type", string(entry.Type))
	msg.Metadata.Set("wallet", entry.Wallet)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.issuanceTopic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishAuditFinding publishes a soulbound holder that lost eligibility
func (p *WatermillPublisher) PublishAuditFinding(ctx context.Context, finding core.AuditFinding) error {
	payload, err := json.Marshal(finding)
	if err != nil {
		return fmt.Errorf("failed to marshal finding: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("wallet", finding.Wallet)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.auditTopic, msg); err != nil {
		return fmt.Errorf("failed to publish finding: %w", err)
	}

	return nil
}
