package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventBus is the hand-off between the catalog, the drift worker, and
// external alerting consumers. Publishers hand over typed event values
// (CatalogPublishedEvent, ProfileScoredEvent, DriftAlert); the bus owns the
// wire encoding. Backed by Go channels (Community) or NATS (Pro). Events
// carry immutable values or versioned references only, never statement
// text.
type EventBus interface {
	// Publish encodes a typed event and delivers it to a tenant's topic.
	Publish(ctx context.Context, tenantID string, topic string, event any) error

	// Subscribe registers a handler for a tenant's topic. Returns a
	// subscription used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the delivery envelope around one published event.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Decode unmarshals the event payload into the typed event for the
// message's topic.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", m.Topic, err)
	}
	return nil
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

// Standard topic names for the compliance pipeline.
const (
	// TopicCatalogPublished fans a new regulation version out to the drift
	// worker. Payload: CatalogPublishedEvent.
	TopicCatalogPublished = "catalog.published"

	// TopicProfileScored announces a freshly aggregated risk profile.
	TopicProfileScored = "profile.scored"

	// TopicDriftAlert carries critical/warning DriftAlert payloads for the
	// external alerting layer.
	TopicDriftAlert = "drift.alert"
)

// CatalogPublishedEvent is the payload broadcast when a regulation version
// is published. The diff rides along so drift consumers never have to
// recompute it.
type CatalogPublishedEvent struct {
	TenantID       string      `json:"tenantId"`
	JurisdictionID string      `json:"jurisdictionId"`
	OldVersionID   string      `json:"oldVersionId,omitempty"`
	NewVersionID   string      `json:"newVersionId"`
	Diff           CatalogDiff `json:"diff"`
}

// ProfileScoredEvent is the payload broadcast after a document (or
// portfolio) has been scored and its risk profile persisted. Carries
// versioned references only, never statement text.
type ProfileScoredEvent struct {
	TenantID            string   `json:"tenantId"`
	ProfileID           string   `json:"profileId"`
	DocumentIDs         []string `json:"documentIds"`
	JurisdictionID      string   `json:"jurisdictionId"`
	RegulationVersionID string   `json:"regulationVersionId"`
	OverallScore        float64  `json:"overallScore"`
	Undetermined        bool     `json:"undetermined"`
}
