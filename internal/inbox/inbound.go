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
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// HandleInbound processes one customer message for tenant t.
//
// Order: dedupe, find-or-create (reopen persisted), bot decision and send,
// then the customer message itself. A bot failure never stops the customer
// message from being stored.
func (s *Service) HandleInbound(ctx context.Context, t tenant.Tenant, in whatsapp.InboundMessage) error {
	ctx = logger.Enrich(ctx, "tenant_id", t.ID, "provider_message_id", in.ProviderMessageID)
	log := logger.From(ctx)

	receivedAt := in.Timestamp
	if receivedAt.IsZero() {
		receivedAt = s.clock()
	}

	exists, err := s.d.Messages.ExistsByProviderID(ctx, t.ID, in.ProviderMessageID)
	if err != nil {
		return err
	}
	if exists {
		log.Debug("inbound redelivery ignored")
		return nil
	}

	conv, created, err := s.d.Conversations.FindOrCreate(ctx, t.ID, in.From, in.ProfileName)
	if err != nil {
		return err
	}
	ctx = logger.Enrich(ctx, "conversation_id", conv.ID)
	if created {
		logger.From(ctx).Info("conversation created")
	}

	conv = s.runBot(ctx, t, conv, in)

	m := s.normalize(ctx, t, conv, in, receivedAt)
	saved, err := s.d.Messages.Append(ctx, m)
	if errors.Is(err, message.ErrDuplicateMessage) {
		logger.From(ctx).Debug("inbound duplicate on append")
		return nil
	}
	if err != nil {
		return err
	}

	conv, err = s.d.Conversations.TouchOnInbound(ctx, conv, previewOf(saved), saved.CreatedAt)
	if err != nil {
		return err
	}
	s.publish(ctx, realtime.NewMessage(saved), realtime.ConversationUpdated(conv))
	return nil
}

// HandleStatus applies a delivery receipt. Unknown ids and untracked statuses are no-ops.
func (s *Service) HandleStatus(ctx context.Context, t tenant.Tenant, st whatsapp.StatusUpdate) error {
	log := logger.From(ctx).With("tenant_id", t.ID, "provider_message_id", st.ProviderMessageID)

	status, ok := message.ParseDeliveryStatus(st.Status)
	if !ok {
		log.Info("delivery status ignored", "status", st.Status)
		return nil
	}
	m, updated, err := s.d.Messages.UpdateStatusByProviderID(ctx, t.ID, st.ProviderMessageID, status)
	if err != nil {
		return err
	}
	if !updated {
		log.Debug("delivery status not applied", "status", status)
		return nil
	}
	s.publish(ctx, realtime.MessageStatus(m))
	return nil
}

// runBot evaluates the decision table and applies its outcome. It returns the latest conversation.
func (s *Service) runBot(ctx context.Context, t tenant.Tenant, conv conversation.Conversation, in whatsapp.InboundMessage) conversation.Conversation {
	log := logger.From(ctx)

	input := bot.Input{
		TenantID:          t.ID,
		BotEnabled:        t.BotEnabled,
		WelcomeTemplateID: t.WelcomeTemplate(),
		Status:            conv.Status,
	}
	if in.Kind == whatsapp.KindButtonReply && in.Reply != nil {
		input.ReplyID = in.Reply.ID
	}

	d, err := s.d.Bot.Decide(ctx, input)
	if err != nil {
		log.Error("bot decision failed", "err", err)
		return conv
	}
	log.Debug("bot decision", "action", d.Action, "rule", d.Rule, "reason", d.Reason)

	switch d.Action {
	case bot.ActionRecordRating:
		if s.d.Audit != nil {
			label := ""
			if in.Reply != nil {
				label = in.Reply.Title
			}
			if err := s.d.Audit.LogRating(ctx, t.ID, conv.ID, in.ProviderMessageID, d.Rating, label); err != nil {
				log.Warn("rating not recorded", "err", err)
			}
		}
	case bot.ActionSendTemplate:
		if d.Template != nil {
			conv = s.applyTemplate(ctx, t, conv, *d.Template)
		}
	}
	return conv
}

// applyTemplate sends tpl and, only on provider acceptance, records it and applies its effects.
func (s *Service) applyTemplate(ctx context.Context, t tenant.Tenant, conv conversation.Conversation, tpl template.Template) conversation.Conversation {
	log := logger.From(ctx).With("template_id", tpl.ID)

	m, next, err := s.sendTemplate(ctx, t, conv, tpl, bot.Render(tpl))
	if err != nil {
		if errors.Is(err, whatsapp.ErrProviderAuth) {
			log.Warn("bot send failed: provider credentials rejected", "err", err)
		} else {
			log.Warn("bot send failed", "err", err)
		}
		return conv
	}
	conv = next

	eff := bot.EffectsOf(tpl)
	if eff.Status != "" && eff.Status != conv.Status {
		prev := conv.Status
		updated, changed, err := s.d.Conversations.SetStatus(ctx, t.ID, conv.ID, eff.Status)
		if err != nil {
			log.Error("bot status transition failed", "status", eff.Status, "err", err)
		} else {
			conv = updated
			if changed {
				s.auditStatus(ctx, conv, audit.ActorBot, prev, eff.Status)
			}
		}
	}
	s.publish(ctx, realtime.NewMessage(m), realtime.ConversationUpdated(conv))

	if eff.NotifyAgent {
		s.dispatch(ctx, TaskAgentNotify, jobPayload{TenantID: t.ID, ConversationID: conv.ID})
	}
	if eff.RequestRating && t.RatingTemplate() != "" {
		s.dispatch(ctx, TaskRatingRequest, jobPayload{TenantID: t.ID, ConversationID: conv.ID})
	}
	return conv
}

// normalize converts the provider message into a customer Message, relaying media when present.
func (s *Service) normalize(ctx context.Context, t tenant.Tenant, conv conversation.Conversation, in whatsapp.InboundMessage, at time.Time) message.Message {
	m := message.Message{
		TenantID:       t.ID,
		ConversationID: conv.ID,
		Sender:         message.SenderCustomer,
		Type:           message.TypeText,
		CreatedAt:      at,
	}
	if in.ProviderMessageID != "" {
		pid := in.ProviderMessageID
		m.ProviderMessageID = &pid
	}

	switch in.Kind {
	case whatsapp.KindText:
		m.Content = in.Text
	case whatsapp.KindButtonReply:
		m.Content = in.Text
		if in.Reply != nil && in.Reply.Title != "" {
			m.Content = in.Reply.Title
		}
	case whatsapp.KindImage, whatsapp.KindVideo, whatsapp.KindAudio, whatsapp.KindDocument:
		s.relayInto(ctx, t, in, &m)
	default:
		kind := in.RawType
		if kind == "" {
			kind = string(in.Kind)
		}
		m.Content = "[unsupported message: " + kind + "]"
	}

	if in.QuotedProviderID != "" {
		quoted, err := s.d.Messages.FindByProviderID(ctx, t.ID, in.QuotedProviderID)
		switch {
		case err == nil:
			m.ReplyTo = message.QuoteOf(quoted)
		case !errors.Is(err, message.ErrNotFound):
			logger.From(ctx).Warn("quoted message lookup failed", "err", err)
		}
	}
	return m
}

func (s *Service) relayInto(ctx context.Context, t tenant.Tenant, in whatsapp.InboundMessage, m *message.Message) {
	if in.Media == nil {
		m.Content = media.Placeholder
		return
	}
	res, err := s.d.Media.Relay(ctx, t.Credentials(), t.ID, *in.Media)
	if err != nil {
		logger.From(ctx).Warn("inbound media relay failed", "media_id", in.Media.ID, "err", err)
		m.Content = media.Placeholder
		return
	}
	m.Type = mediaType(in.Kind)
	m.Content = res.URL
	if res.Filename != "" {
		name := res.Filename
		m.Filename = &name
	}
}

func mediaType(k whatsapp.InboundKind) message.Type {
	switch k {
	case whatsapp.KindImage:
		return message.TypeImage
	case whatsapp.KindVideo:
		return message.TypeVideo
	case whatsapp.KindAudio:
		return message.TypeAudio
	default:
		return message.TypeDocument
	}
}
