package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/bot"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/media"
	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/notify"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/tasks"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// ErrValidation is returned for malformed agent input.
var ErrValidation = errors.New("inbox: validation failed")

// Gateway is the outbound provider API.
type Gateway interface {
	Send(ctx context.Context, creds whatsapp.Credentials, to string, p whatsapp.Payload) (string, error)
}

// MediaRelay moves media into durable storage.
type MediaRelay interface {
	Relay(ctx context.Context, creds whatsapp.Credentials, tenantID string, ref whatsapp.InboundMedia) (media.Result, error)
	Store(ctx context.Context, tenantID string, data []byte, declaredMIME, filename string) (media.Result, error)
}

// Deps are the collaborators of Service. Audit and Notifier are optional.
type Deps struct {
	Tenants       *tenant.Service
	Conversations *conversation.Store
	Messages      *message.Store
	Templates     *template.Service
	Bot           *bot.Engine
	Gateway       Gateway
	Media         MediaRelay
	Events        realtime.Publisher
	Tasks         tasks.Dispatcher
	Notifier      notify.Notifier
	Audit         *audit.Service

	// SendMediaByLink sends agent images, videos and documents by public URL instead of uploading bytes.
	SendMediaByLink bool
}

// Service orchestrates inbound provider events and agent actions.
// It is the only component that writes conversations and messages.
type Service struct {
	d     Deps
	clock func() time.Time
}

func NewService(d Deps) (*Service, error) {
	switch {
	case d.Tenants == nil, d.Conversations == nil, d.Messages == nil, d.Templates == nil:
		return nil, errors.New("inbox: stores are required")
	case d.Bot == nil:
		return nil, errors.New("inbox: bot engine is required")
	case d.Gateway == nil, d.Media == nil:
		return nil, errors.New("inbox: provider gateway and media relay are required")
	case d.Events == nil, d.Tasks == nil:
		return nil, errors.New("inbox: event publisher and task dispatcher are required")
	}
	if d.Notifier == nil {
		d.Notifier = notify.LogNotifier{}
	}
	return &Service{d: d, clock: time.Now}, nil
}

// publish is best effort; a dashboard that misses an event re-fetches on reconnect.
func (s *Service) publish(ctx context.Context, events ...realtime.Event) {
	for _, e := range events {
		if err := s.d.Events.Publish(ctx, e); err != nil {
			logger.From(ctx).Warn("realtime publish failed", "event", e.Type, "tenant_id", e.TenantID, "err", err)
		}
	}
}

// record appends an outbound message the provider already accepted and touches the conversation.
func (s *Service) record(ctx context.Context, conv conversation.Conversation, m message.Message, providerID string) (message.Message, conversation.Conversation, error) {
	m.TenantID = conv.TenantID
	m.ConversationID = conv.ID
	m.Sender = message.SenderAgent
	m.Status = message.StatusSent
	if providerID != "" {
		m.ProviderMessageID = &providerID
	}
	saved, err := s.d.Messages.Append(ctx, m)
	if err != nil {
		return message.Message{}, conv, err
	}
	conv, err = s.d.Conversations.TouchOnOutbound(ctx, conv, previewOf(saved), saved.CreatedAt)
	if err != nil {
		return saved, conv, err
	}
	return saved, conv, nil
}

// sendTemplate delivers a rendered bot template and records it only after the provider accepted it.
func (s *Service) sendTemplate(ctx context.Context, t tenant.Tenant, conv conversation.Conversation, tpl template.Template, payload whatsapp.Payload) (message.Message, conversation.Conversation, error) {
	pid, err := s.d.Gateway.Send(ctx, t.Credentials(), conv.CustomerPhone, payload)
	if err != nil {
		s.auditFailure(ctx, conv, tpl.ID, err)
		return message.Message{}, conv, err
	}
	return s.record(ctx, conv, message.Message{Type: message.TypeText, Content: tpl.Body}, pid)
}

func (s *Service) auditFailure(ctx context.Context, conv conversation.Conversation, templateID string, cause error) {
	if s.d.Audit == nil {
		return
	}
	if err := s.d.Audit.LogBotSendFailure(ctx, conv.TenantID, conv.ID, templateID, cause); err != nil {
		logger.From(ctx).Warn("audit write failed", "err", err)
	}
}

func (s *Service) auditStatus(ctx context.Context, conv conversation.Conversation, actor string, from, to conversation.Status) {
	if s.d.Audit == nil {
		return
	}
	if err := s.d.Audit.LogStatusChange(ctx, conv.TenantID, conv.ID, actor, string(from), string(to)); err != nil {
		logger.From(ctx).Warn("audit write failed", "err", err)
	}
}

// previewOf is the conversation list preview for a message.
func previewOf(m message.Message) string {
	if m.Type.IsMedia() {
		if m.Filename != nil && *m.Filename != "" {
			return "[" + string(m.Type) + "] " + *m.Filename
		}
		return "[" + string(m.Type) + "]"
	}
	return m.Content
}
