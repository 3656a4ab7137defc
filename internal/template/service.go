package template

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for templates.
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (Template, error)
	List(ctx context.Context, tenantID string) ([]Template, error)
	Insert(ctx context.Context, t Template) error
}

type Service struct {
	repo  Repository
	clock func() time.Time

	// EnforceAcyclic rejects a new template that closes a loop in the flow graph.
	EnforceAcyclic bool
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Get implements the bot's template source.
func (s *Service) Get(ctx context.Context, tenantID, id string) (Template, error) {
	if tenantID == "" || id == "" {
		return Template{}, ErrNotFound
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Template, error) {
	return s.repo.List(ctx, tenantID)
}

// CreateResult carries the stored template and non-fatal graph findings.
type CreateResult struct {
	Template Template `json:"template"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Service) Create(ctx context.Context, tenantID string, t Template) (CreateResult, error) {
	t.TenantID = tenantID
	t.Name = strings.TrimSpace(t.Name)
	for i := range t.Buttons {
		t.Buttons[i].Label = strings.TrimSpace(t.Buttons[i].Label)
		if t.Buttons[i].NextTemplateID != nil && *t.Buttons[i].NextTemplateID == "" {
			t.Buttons[i].NextTemplateID = nil
		}
	}
	if t.Type == "" {
		t.Type = TypeText
		if len(t.Buttons) > 0 {
			t.Type = TypeInteractive
		}
	}
	if err := Validate(t); err != nil {
		return CreateResult{}, err
	}

	now := s.clock().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Buttons == nil {
		t.Buttons = []Button{}
	}

	existing, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return CreateResult{}, err
	}
	g := BuildGraph(append(existing, t))

	var res CreateResult
	if cycle := g.FindCycle(); cycle != nil {
		if s.EnforceAcyclic {
			return CreateResult{}, ErrCycle
		}
		res.Warnings = append(res.Warnings, "flow graph loops: "+strings.Join(cycle, " -> "))
	}
	for _, missing := range g.Dangling[t.ID] {
		res.Warnings = append(res.Warnings, "button points to unknown template "+missing)
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return CreateResult{}, err
	}
	res.Template = t
	return res, nil
}
