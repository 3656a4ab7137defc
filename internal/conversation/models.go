package conversation

import (
	"errors"
	"time"
)

// Status is the conversation lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Conversation is the unique thread between a tenant and one customer address.
//
// Invariants:
// - At most one row per (tenant_id, customer_phone); enforced by a unique constraint.
// - UnreadCount never goes below zero.
//
// Storage (Postgres):
//   conversations(id, tenant_id, customer_phone, customer_name NULL, status, last_message,
//   last_message_at NULL, unread_count, notes, created_at, updated_at,
//   CONSTRAINT conversations_tenant_phone_key UNIQUE (tenant_id, customer_phone))
type Conversation struct {
	ID            string     `json:"id" db:"id"`
	TenantID      string     `json:"tenant_id" db:"tenant_id"`
	CustomerPhone string     `json:"customer_phone" db:"customer_phone"`
	CustomerName  *string    `json:"customer_name" db:"customer_name"`
	Status        Status     `json:"status" db:"status"`
	LastMessage   string     `json:"last_message" db:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at" db:"last_message_at"`
	UnreadCount   int        `json:"unread_count" db:"unread_count"`
	Notes         string     `json:"notes" db:"notes"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Filter narrows List. Empty Status lists every conversation.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Touch is a preview/timestamp update applied after a message is stored.
type Touch struct {
	Preview     string
	At          time.Time
	UnreadDelta int
}

// PreviewRunes caps the stored last-message preview.
const PreviewRunes = 200

var (
	ErrNotFound      = errors.New("conversation: not found")
	ErrConflict      = errors.New("conversation: already exists")
	ErrInvalidStatus = errors.New("conversation: invalid status")
	ErrInvalidInput  = errors.New("conversation: invalid input")
)
