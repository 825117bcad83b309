// Package outbox implements the transactional outbox the auth domain
// publishes through. Writers emit events inside their own database
// transaction; a separate publisher process moves committed rows to
// Pub/Sub.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. Nil actor means the
// system itself (cron jobs, automatic eviction).
type ActorRef struct {
	UserID    uuid.UUID `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      string    `json:"role,omitempty"`
}

// PayloadEnvelope is the wire shape stored in outbox_events.payload.
// Version gates payload evolution; consumers pick decoders by it.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
