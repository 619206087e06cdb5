package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the ruleset lifecycle.
const (
	// TopicRulesetPublished is emitted after a successful publish; every
	// node's invalidation worker consumes it and drops the cached ruleset
	// for the published key immediately, rather than waiting out the TTL.
	TopicRulesetPublished = "kestrel.ruleset.published"

	// TopicReportSaved is emitted after an evaluation report is persisted.
	TopicReportSaved = "kestrel.report.saved"
)

// RulesetPublishedEvent is the payload carried on TopicRulesetPublished.
type RulesetPublishedEvent struct {
	TenantID       string `json:"tenantId"`
	Domain         string `json:"domain"`
	Jurisdiction   string `json:"jurisdiction"`
	RulesetVersion string `json:"rulesetVersion"`
}
