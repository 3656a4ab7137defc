package inbox

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/media"
	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

const (
	MaxReplyRunes = 4096
	MaxNotesRunes = 5000
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ReplyInput is an agent text reply, optionally quoting an earlier message.
type ReplyInput struct {
	Text             string `json:"text"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

// Reply sends agent text. Provider auth and rejection errors are returned unchanged.
func (s *Service) Reply(ctx context.Context, tenantID, conversationID string, in ReplyInput) (message.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return message.Message{}, invalid("text is required")
	}
	if utf8.RuneCountInString(text) > MaxReplyRunes {
		return message.Message{}, invalid("text exceeds %d characters", MaxReplyRunes)
	}

	t, err := s.d.Tenants.Get(ctx, tenantID)
	if err != nil {
		return message.Message{}, err
	}
	conv, err := s.d.Conversations.Get(ctx, tenantID, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	var (
		quote   *message.Quote
		replyTo string
	)
	if in.ReplyToMessageID != "" {
		q, err := s.d.Messages.Get(ctx, tenantID, in.ReplyToMessageID)
		if err != nil {
			return message.Message{}, err
		}
		if q.ConversationID != conv.ID {
			return message.Message{}, invalid("reply_to_message_id belongs to another conversation")
		}
		quote = message.QuoteOf(q)
		if q.ProviderMessageID != nil {
			replyTo = *q.ProviderMessageID
		}
	}

	pid, err := s.d.Gateway.Send(ctx, t.Credentials(), conv.CustomerPhone, whatsapp.Text{Body: text, ReplyTo: replyTo})
	if err != nil {
		return message.Message{}, err
	}
	m, conv, err := s.record(ctx, conv, message.Message{Type: message.TypeText, Content: text, ReplyTo: quote}, pid)
	if err != nil {
		return message.Message{}, err
	}
	s.publish(ctx, realtime.NewMessage(m), realtime.ConversationUpdated(conv))
	return m, nil
}

// MediaInput is an agent file upload.
type MediaInput struct {
	Data     []byte
	MIMEType string
	Filename string
	Caption  string
}

// SendMedia stores the upload durably, then sends it by link or by upload.
// Audio always goes by upload; the provider does not take captions or links for it reliably.
func (s *Service) SendMedia(ctx context.Context, tenantID, conversationID string, in MediaInput) (message.Message, error) {
	if len(in.Data) == 0 {
		return message.Message{}, invalid("file is required")
	}
	if len(in.Data) > whatsapp.MaxMediaBytes {
		return message.Message{}, invalid("file exceeds %d bytes", whatsapp.MaxMediaBytes)
	}

	t, err := s.d.Tenants.Get(ctx, tenantID)
	if err != nil {
		return message.Message{}, err
	}
	conv, err := s.d.Conversations.Get(ctx, tenantID, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	res, err := s.d.Media.Store(ctx, tenantID, in.Data, in.MIMEType, in.Filename)
	if err != nil {
		return message.Message{}, err
	}
	typ := media.TypeFor(res.MIMEType)
	caption := strings.TrimSpace(in.Caption)

	pid, err := s.d.Gateway.Send(ctx, t.Credentials(), conv.CustomerPhone, s.mediaPayload(typ, res, caption))
	if err != nil {
		return message.Message{}, err
	}
	filename := res.Filename
	m, conv, err := s.record(ctx, conv, message.Message{Type: typ, Content: res.URL, Filename: &filename}, pid)
	if err != nil {
		return message.Message{}, err
	}
	s.publish(ctx, realtime.NewMessage(m), realtime.ConversationUpdated(conv))
	return m, nil
}

func (s *Service) mediaPayload(typ message.Type, res media.Result, caption string) whatsapp.Payload {
	if s.d.SendMediaByLink {
		switch typ {
		case message.TypeImage:
			return whatsapp.ImageLink{URL: res.URL, Caption: caption}
		case message.TypeVideo:
			return whatsapp.VideoLink{URL: res.URL, Caption: caption}
		case message.TypeDocument:
			return whatsapp.DocumentLink{URL: res.URL, Filename: res.Filename, Caption: caption}
		}
	}
	return whatsapp.MediaUpload{
		Kind:     whatsapp.MediaKind(typ),
		Data:     res.Data,
		MIMEType: res.MIMEType,
		Filename: res.Filename,
		Caption:  caption,
	}
}

// SetStatus applies an agent status change. Moving to resolved schedules the rating
// request in the background; the caller never waits for it.
func (s *Service) SetStatus(ctx context.Context, tenantID, conversationID string, status conversation.Status, actor string) (conversation.Conversation, error) {
	if !status.Valid() {
		return conversation.Conversation{}, invalid("status must be one of new, in_progress, resolved")
	}
	before, err := s.d.Conversations.Get(ctx, tenantID, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv, changed, err := s.d.Conversations.SetStatus(ctx, tenantID, conversationID, status)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !changed {
		return conv, nil
	}

	s.auditStatus(ctx, conv, actor, before.Status, status)
	s.publish(ctx, realtime.ConversationUpdated(conv))

	if status == conversation.StatusResolved {
		t, err := s.d.Tenants.Get(ctx, tenantID)
		if err != nil {
			logger.From(ctx).Warn("rating request skipped", "conversation_id", conv.ID, "err", err)
		} else if t.RatingTemplate() != "" {
			s.dispatch(ctx, TaskRatingRequest, jobPayload{TenantID: tenantID, ConversationID: conv.ID})
		}
	}
	return conv, nil
}

func (s *Service) UpdateNotes(ctx context.Context, tenantID, conversationID, notes string) (conversation.Conversation, error) {
	if utf8.RuneCountInString(notes) > MaxNotesRunes {
		return conversation.Conversation{}, invalid("notes exceed %d characters", MaxNotesRunes)
	}
	conv, err := s.d.Conversations.UpdateNotes(ctx, tenantID, conversationID, notes)
	if err != nil {
		return conversation.Conversation{}, err
	}
	s.publish(ctx, realtime.ConversationUpdated(conv))
	return conv, nil
}

// MarkRead resets the unread counter.
func (s *Service) MarkRead(ctx context.Context, tenantID, conversationID string) (conversation.Conversation, error) {
	conv, err := s.d.Conversations.MarkRead(ctx, tenantID, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	s.publish(ctx, realtime.ConversationUpdated(conv))
	return conv, nil
}

// InitiateInput starts a conversation with a provider-approved template.
type InitiateInput struct {
	Phone        string `json:"phone"`
	CustomerName string `json:"customer_name,omitempty"`
	TemplateName string `json:"template_name"`
	Language     string `json:"language,omitempty"`
}

// Initiate sends an approved template to a single recipient.
// The conversation is moved to in_progress so the customer's answer does not trigger the welcome flow.
func (s *Service) Initiate(ctx context.Context, tenantID string, in InitiateInput) (conversation.Conversation, message.Message, error) {
	phone, ok := NormalizePhone(in.Phone)
	if !ok {
		return conversation.Conversation{}, message.Message{}, invalid("phone must be 7 to 15 digits")
	}
	name := strings.TrimSpace(in.TemplateName)
	if name == "" {
		return conversation.Conversation{}, message.Message{}, invalid("template_name is required")
	}

	t, err := s.d.Tenants.Get(ctx, tenantID)
	if err != nil {
		return conversation.Conversation{}, message.Message{}, err
	}
	conv, _, err := s.d.Conversations.FindOrCreate(ctx, tenantID, phone, in.CustomerName)
	if err != nil {
		return conversation.Conversation{}, message.Message{}, err
	}

	pid, err := s.d.Gateway.Send(ctx, t.Credentials(), conv.CustomerPhone, whatsapp.TemplateByName{Name: name, Language: in.Language})
	if err != nil {
		return conversation.Conversation{}, message.Message{}, err
	}
	m, conv, err := s.record(ctx, conv, message.Message{Type: message.TypeText, Content: "[template: " + name + "]"}, pid)
	if err != nil {
		return conversation.Conversation{}, message.Message{}, err
	}
	if conv.Status != conversation.StatusInProgress {
		if updated, _, err := s.d.Conversations.SetStatus(ctx, tenantID, conv.ID, conversation.StatusInProgress); err != nil {
			logger.From(ctx).Warn("initiate status update failed", "conversation_id", conv.ID, "err", err)
		} else {
			conv = updated
		}
	}
	s.publish(ctx, realtime.NewMessage(m), realtime.ConversationUpdated(conv))
	return conv, m, nil
}

// NormalizePhone strips formatting and returns the digits the provider expects.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r) && r < utf8.RuneSelf:
			b.WriteRune(r)
		case r == '+' && b.Len() == 0, r == ' ', r == '-', r == '(', r == ')':
		default:
			return "", false
		}
	}
	n := b.Len()
	return b.String(), n >= 7 && n <= 15
}

func (s *Service) ListConversations(ctx context.Context, tenantID string, f conversation.Filter) ([]conversation.Conversation, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("unknown status %q", f.Status)
	}
	return s.d.Conversations.List(ctx, tenantID, f)
}

func (s *Service) GetConversation(ctx context.Context, tenantID, conversationID string) (conversation.Conversation, error) {
	return s.d.Conversations.Get(ctx, tenantID, conversationID)
}

// ListMessages returns one page of a conversation owned by tenantID.
func (s *Service) ListMessages(ctx context.Context, tenantID, conversationID string, page, pageSize int) (message.Page, error) {
	if _, err := s.d.Conversations.Get(ctx, tenantID, conversationID); err != nil {
		return message.Page{}, err
	}
	return s.d.Messages.List(ctx, tenantID, conversationID, page, pageSize)
}

func (s *Service) ListTemplates(ctx context.Context, tenantID string) ([]template.Template, error) {
	return s.d.Templates.List(ctx, tenantID)
}

func (s *Service) CreateTemplate(ctx context.Context, tenantID string, t template.Template) (template.CreateResult, error) {
	return s.d.Templates.Create(ctx, tenantID, t)
}
