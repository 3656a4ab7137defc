package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, tenantID string, limit int) ([]Event, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Recent returns the newest events for a tenant, newest first.
func (s *Service) Recent(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, tenantID, limit)
}

// LogRating records a customer's answer to a rating request.
func (s *Service) LogRating(ctx context.Context, tenantID, conversationID, messageID string, rating int, label string) error {
	meta, _ := json.Marshal(map[string]any{"rating": rating, "label": label})
	return s.Append(ctx, Event{
		TenantID:       tenantID,
		Type:           EventTypeRating,
		Actor:          ActorCustomer,
		ConversationID: conversationID,
		MessageID:      messageID,
		Message:        "rating " + strconv.Itoa(rating),
		Metadata:       string(meta),
	})
}

// LogStatusChange records a conversation status transition made by an agent or the bot.
func (s *Service) LogStatusChange(ctx context.Context, tenantID, conversationID, actor, from, to string) error {
	meta, _ := json.Marshal(map[string]string{"from": from, "to": to})
	return s.Append(ctx, Event{
		TenantID:       tenantID,
		Type:           EventTypeStatusChanged,
		Actor:          actor,
		ConversationID: conversationID,
		Message:        from + " -> " + to,
		Metadata:       string(meta),
	})
}

// LogBotSendFailure records a template the provider refused to deliver.
func (s *Service) LogBotSendFailure(ctx context.Context, tenantID, conversationID, templateID string, cause error) error {
	msg := "send failed"
	if cause != nil {
		msg = cause.Error()
	}
	meta, _ := json.Marshal(map[string]string{"template_id": templateID})
	return s.Append(ctx, Event{
		TenantID:       tenantID,
		Type:           EventTypeBotSendFailed,
		Actor:          ActorBot,
		ConversationID: conversationID,
		Message:        msg,
		Metadata:       string(meta),
	})
}
