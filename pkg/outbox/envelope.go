package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
// Only Data travels on the wire; the remaining fields become message
// attributes (Pub/Sub) or headers (Kafka).
type PayloadEnvelope struct {
	Version    int               `json:"version"`
	EventID    string            `json:"eventId"`
	OccurredAt time.Time         `json:"occurredAt"`
	Trace      map[string]string `json:"trace,omitempty"`
	Data       json.RawMessage   `json:"data"`
}
