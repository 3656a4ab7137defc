package notify

import (
	"context"
	"log/slog"
	"time"
)

// RoutingKeyContactRequested is published when a bot flow hands a customer to a human.
const RoutingKeyContactRequested = "agent.contact_requested.v1"

// Notification asks a tenant's agents to pick up a conversation.
type Notification struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	CustomerPhone  string    `json:"customer_phone"`
	CustomerName   string    `json:"customer_name,omitempty"`
	LastMessage    string    `json:"last_message,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

type Notifier interface {
	NotifyAgent(ctx context.Context, n Notification) error
}

// LogNotifier only records the request. Used when no broker is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) NotifyAgent(ctx context.Context, n Notification) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "agent contact requested",
		"tenant_id", n.TenantID,
		"conversation_id", n.ConversationID,
		"customer_phone", n.CustomerPhone,
	)
	return nil
}
