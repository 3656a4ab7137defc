package template

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Type drives the post-send side effects of a bot template.
type Type string

const (
	TypeText                Type = "text"
	TypeInteractive         Type = "interactive"
	TypeContactAgent        Type = "contact_agent"
	TypeResolveConversation Type = "resolve_conversation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeInteractive, TypeContactAgent, TypeResolveConversation:
		return true
	}
	return false
}

const (
	MaxBodyRunes  = 1024
	MaxButtons    = 3
	MaxLabelRunes = 20
)

// Button is one edge of the template flow graph. NextTemplateID may dangle.
type Button struct {
	Label          string  `json:"label"`
	NextTemplateID *string `json:"next_template_id,omitempty"`
}

// Template is a tenant-authored bot message.
//
// Storage (Postgres): templates(id, tenant_id, name, body, type, buttons JSONB, created_at, updated_at)
type Template struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Body      string    `json:"body" db:"body"`
	Type      Type      `json:"type" db:"type"`
	Buttons   []Button  `json:"buttons" db:"buttons"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (t Template) HasButtons() bool { return len(t.Buttons) > 0 }

var (
	ErrNotFound        = errors.New("template: not found")
	ErrInvalidTemplate = errors.New("template: invalid template")
	ErrCycle           = errors.New("template: flow graph contains a cycle")
)

// Validate checks the shape of t. References between templates are not checked.
func Validate(t Template) error {
	var problems []string
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		problems = append(problems, "body is required")
	}
	if utf8.RuneCountInString(t.Body) > MaxBodyRunes {
		problems = append(problems, fmt.Sprintf("body exceeds %d characters", MaxBodyRunes))
	}
	if !t.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", t.Type))
	}
	if len(t.Buttons) > MaxButtons {
		problems = append(problems, fmt.Sprintf("at most %d buttons", MaxButtons))
	}
	for i, b := range t.Buttons {
		label := strings.TrimSpace(b.Label)
		if label == "" {
			problems = append(problems, fmt.Sprintf("button %d: label is required", i+1))
		}
		if utf8.RuneCountInString(label) > MaxLabelRunes {
			problems = append(problems, fmt.Sprintf("button %d: label exceeds %d characters", i+1, MaxLabelRunes))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(problems, "; "))
	}
	return nil
}
