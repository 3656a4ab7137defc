package bot

import (
	"context"
	"errors"

	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/template"
)

// Engine decides, per inbound event, whether the bot sends a template and which one.
//
// Priority (first match wins):
//  1) Bot disabled for tenant
//  2) Button reply carrying a rating id
//  3) Button reply whose id references a template
//  4) Conversation status is new -> welcome template
//  5) Otherwise nothing
//
// Return decision only. No side effects (no DB writes, no provider calls).
type Engine struct {
	Templates TemplateSource
}

// TemplateSource is the minimal template lookup the engine needs.
type TemplateSource interface {
	Get(ctx context.Context, tenantID, id string) (template.Template, error)
}

// Input is everything the decision table looks at.
type Input struct {
	TenantID          string
	BotEnabled        bool
	WelcomeTemplateID string

	// Status is the conversation status after any reopen has been persisted.
	Status conversation.Status

	// ReplyID is the clicked button id; empty when the inbound event is not a button reply.
	ReplyID string
}

func NewEngine(templates TemplateSource) *Engine {
	return &Engine{Templates: templates}
}

func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	if in.TenantID == "" {
		return Decision{}, errors.New("bot: tenant_id required")
	}

	// 1) Bot disabled
	if !in.BotEnabled {
		return Decision{Action: ActionNone, Rule: RuleBotDisabled, Reason: "bot_disabled"}, nil
	}

	if in.ReplyID != "" {
		// 2) Rating reply
		if score, ok := ParseRating(in.ReplyID); ok {
			return Decision{Action: ActionRecordRating, Rating: score, Rule: RuleRatingReply, Reason: "rating_reply"}, nil
		}

		// 3) Button routes to the next template
		if id, ok := TemplateRef(in.ReplyID); ok {
			t, err := e.lookup(ctx, in.TenantID, id)
			if err != nil {
				return Decision{}, err
			}
			if t != nil {
				return Decision{Action: ActionSendTemplate, Template: t, Rule: RuleButtonRoute, Reason: "button_route"}, nil
			}
			// Dangling reference: fall through.
		}
	}

	// 4) New conversation gets the welcome template
	if in.Status == conversation.StatusNew {
		if in.WelcomeTemplateID == "" {
			return Decision{Action: ActionNone, Rule: RuleWelcome, Reason: "welcome_not_configured"}, nil
		}
		t, err := e.lookup(ctx, in.TenantID, in.WelcomeTemplateID)
		if err != nil {
			return Decision{}, err
		}
		if t == nil {
			return Decision{Action: ActionNone, Rule: RuleWelcome, Reason: "welcome_template_missing"}, nil
		}
		return Decision{Action: ActionSendTemplate, Template: t, Rule: RuleWelcome, Reason: "welcome"}, nil
	}

	// 5) No automatic template
	return Decision{Action: ActionNone, Rule: RuleNoAutoReply, Reason: "no_auto_reply"}, nil
}

// lookup returns nil without error when the template does not exist.
func (e *Engine) lookup(ctx context.Context, tenantID, id string) (*template.Template, error) {
	if e.Templates == nil {
		return nil, errors.New("bot: template source not configured")
	}
	t, err := e.Templates.Get(ctx, tenantID, id)
	if errors.Is(err, template.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
