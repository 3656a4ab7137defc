package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Writes are best-effort; callers never fail a customer or agent flow on audit errors.
type Event struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Type     EventType `json:"type" db:"type"`

	// Actor is "bot", "customer", or the agent username.
	Actor string `json:"actor,omitempty" db:"actor"`

	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`
	MessageID      string `json:"message_id,omitempty" db:"message_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRating        EventType = "rating_received"
	EventTypeStatusChanged EventType = "conversation_status_changed"
	EventTypeBotSendFailed EventType = "bot_send_failed"
)

const (
	ActorBot      = "bot"
	ActorCustomer = "customer"
)
