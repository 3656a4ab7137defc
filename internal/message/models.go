package message

import (
	"errors"
	"time"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

// Sender is who wrote a message. Bot messages are agent messages.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// Type is the closed set of stored message kinds.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeVideo    Type = "video"
	TypeAudio    Type = "audio"
	TypeDocument Type = "document"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeDocument:
		return true
	}
	return false
}

// IsMedia reports whether Content holds a durable media URL.
func (t Type) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument:
		return true
	}
	return false
}

// DeliveryStatus only moves forward: sent < delivered < read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// ParseDeliveryStatus maps a provider status string; ok is false for statuses we do not track.
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	d := DeliveryStatus(s)
	return d, d.Rank() > 0
}

// Quote is the immutable snapshot of a message being replied to.
type Quote struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  Sender `json:"sender"`
}

// QuoteRunes caps Quote.Content.
const QuoteRunes = 100

// Message is append-only apart from Status.
//
// Storage (Postgres):
//   messages(id, tenant_id, conversation_id, sender, type, content, filename NULL,
//   provider_message_id NULL, status, reply_to JSONB NULL, created_at,
//   CONSTRAINT messages_provider_message_id_key UNIQUE (provider_message_id))
type Message struct {
	ID                string         `json:"id" db:"id"`
	TenantID          string         `json:"tenant_id" db:"tenant_id"`
	ConversationID    string         `json:"conversation_id" db:"conversation_id"`
	Sender            Sender         `json:"sender" db:"sender"`
	Type              Type           `json:"type" db:"type"`
	Content           string         `json:"content" db:"content"`
	Filename          *string        `json:"filename,omitempty" db:"filename"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            DeliveryStatus `json:"status" db:"status"`
	ReplyTo           *Quote         `json:"reply_to,omitempty" db:"reply_to"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// QuoteOf snapshots m for use as a reply reference.
func QuoteOf(m Message) *Quote {
	content := m.Content
	if m.Type.IsMedia() {
		content = "[" + string(m.Type) + "]"
		if m.Filename != nil && *m.Filename != "" {
			content = *m.Filename
		}
	}
	return &Quote{ID: m.ID, Content: utils.TruncateRunes(content, QuoteRunes), Sender: m.Sender}
}

// Page is a reverse-chronological slice of a conversation.
type Page struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	HasMore  bool      `json:"has_more"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

var (
	ErrDuplicateMessage = errors.New("message: duplicate provider message id")
	ErrNotFound         = errors.New("message: not found")
	ErrInvalidMessage   = errors.New("message: invalid message")
)
