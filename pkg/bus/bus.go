package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/inventory-backend/pkg/outbox"
)

// Message is an outbound message independent of the broker.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers a message to a topic and returns once the broker has
// acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// Attribute keys set on every message relayed from the outbox.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrOccurredAt    = "occurred_at"
	AttrSchemaVersion = "schema_version"
)

// FromEnvelope builds the wire message for an outbox envelope. Only the
// domain payload travels as the body; envelope metadata and the propagated
// trace context ride along as attributes.
func FromEnvelope(key, eventType, aggregateType string, envelope outbox.PayloadEnvelope) Message {
	attributes := make(map[string]string, 6+len(envelope.Trace))
	for k, v := range envelope.Trace {
		attributes[k] = v
	}
	attributes[AttrEventID] = envelope.EventID
	attributes[AttrEventType] = eventType
	attributes[AttrAggregateType] = aggregateType
	attributes[AttrAggregateID] = key
	attributes[AttrOccurredAt] = envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	attributes[AttrSchemaVersion] = fmt.Sprint(envelope.Version)
	return Message{
		Key:        strings.TrimSpace(key),
		Data:       envelope.Data,
		Attributes: attributes,
	}
}
