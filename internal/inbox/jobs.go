package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/wb6ya/Wisal-sub000/internal/bot"
	"github.com/wb6ya/Wisal-sub000/internal/notify"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/tasks"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

const (
	TaskRatingRequest = "bot:rating_request"
	TaskAgentNotify   = "agent:notify"
)

type jobPayload struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
}

// RegisterTasks binds the background handlers to reg.
func (s *Service) RegisterTasks(reg tasks.Registry) {
	reg.Register(TaskRatingRequest, s.handleRatingRequest)
	reg.Register(TaskAgentNotify, s.handleAgentNotify)
}

// dispatch schedules a fire-and-forget task; failure to enqueue is logged only.
func (s *Service) dispatch(ctx context.Context, taskType string, p jobPayload) {
	log := logger.From(ctx).With("task_type", taskType, "conversation_id", p.ConversationID)
	t, err := tasks.NewJSONTask(taskType, p)
	if err != nil {
		log.Error("task encode failed", "err", err)
		return
	}
	if err := s.d.Tasks.Enqueue(ctx, t); err != nil {
		log.Error("task enqueue failed", "err", err)
	}
}

func (s *Service) handleRatingRequest(ctx context.Context, task tasks.Task) error {
	var p jobPayload
	if err := task.Decode(&p); err != nil {
		return fmt.Errorf("rating request payload: %w", err)
	}
	ctx = logger.Enrich(ctx, "tenant_id", p.TenantID, "conversation_id", p.ConversationID)
	log := logger.From(ctx)

	t, err := s.d.Tenants.Get(ctx, p.TenantID)
	if err != nil {
		return err
	}
	id := t.RatingTemplate()
	if id == "" {
		return nil
	}
	tpl, err := s.d.Templates.Get(ctx, t.ID, id)
	if errors.Is(err, template.ErrNotFound) {
		log.Warn("rating template missing", "template_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	conv, err := s.d.Conversations.Get(ctx, t.ID, p.ConversationID)
	if err != nil {
		return err
	}

	m, conv, err := s.sendTemplate(ctx, t, conv, tpl, bot.RenderRating(tpl))
	if err != nil {
		return fmt.Errorf("rating request: %w", err)
	}
	s.publish(ctx, realtime.NewMessage(m), realtime.ConversationUpdated(conv))
	log.Info("rating request sent", "template_id", tpl.ID)
	return nil
}

func (s *Service) handleAgentNotify(ctx context.Context, task tasks.Task) error {
	var p jobPayload
	if err := task.Decode(&p); err != nil {
		return fmt.Errorf("agent notify payload: %w", err)
	}
	conv, err := s.d.Conversations.Get(ctx, p.TenantID, p.ConversationID)
	if err != nil {
		return err
	}
	n := notify.Notification{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		CustomerPhone:  conv.CustomerPhone,
		LastMessage:    conv.LastMessage,
		RequestedAt:    s.clock().UTC(),
	}
	if conv.CustomerName != nil {
		n.CustomerName = *conv.CustomerName
	}
	return s.d.Notifier.NotifyAgent(ctx, n)
}
