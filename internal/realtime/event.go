package realtime

import (
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/message"
)

// EventType names the three things a dashboard is told about.
type EventType string

const (
	EventConversationUpdated EventType = "conversation.updated"
	EventMessageNew          EventType = "message.new"
	EventMessageStatus       EventType = "message.status"
)

// StatusChange is the payload of a message.status event.
type StatusChange struct {
	MessageID      string                 `json:"message_id"`
	ConversationID string                 `json:"conversation_id"`
	Status         message.DeliveryStatus `json:"status"`
}

// Event is one fan-out frame. Exactly one of Conversation, Message, Status is set.
type Event struct {
	Type         EventType                  `json:"type"`
	TenantID     string                     `json:"tenant_id"`
	Conversation *conversation.Conversation `json:"conversation,omitempty"`
	Message      *message.Message           `json:"message,omitempty"`
	Status       *StatusChange              `json:"status,omitempty"`
	At           time.Time                  `json:"at"`
}

func ConversationUpdated(c conversation.Conversation) Event {
	return Event{Type: EventConversationUpdated, TenantID: c.TenantID, Conversation: &c, At: time.Now().UTC()}
}

func NewMessage(m message.Message) Event {
	return Event{Type: EventMessageNew, TenantID: m.TenantID, Message: &m, At: time.Now().UTC()}
}

func MessageStatus(m message.Message) Event {
	return Event{
		Type:     EventMessageStatus,
		TenantID: m.TenantID,
		Status:   &StatusChange{MessageID: m.ID, ConversationID: m.ConversationID, Status: m.Status},
		At:       time.Now().UTC(),
	}
}
