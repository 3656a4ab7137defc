package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce tenant filtering.
// - Audit events are the immutable source for ratings and status history.
type Repository interface {
	// ListConversations returns conversations created within [from, to).
	ListConversations(ctx context.Context, tenantID string, from, to time.Time) ([]conversation.Conversation, error)

	// ListAuditEvents returns events of the given types created within [from, to).
	ListAuditEvents(ctx context.Context, tenantID string, from, to time.Time, types ...audit.EventType) ([]audit.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) validate(req SummaryRequest) error {
	if req.TenantID == "" {
		return ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ErrInvalidRequest
	}
	if s.repo == nil {
		return errors.New("reporting: repository not configured")
	}
	return nil
}

func (s *Service) ConversationsSummary(ctx context.Context, req SummaryRequest) (ConversationsSummary, error) {
	if err := s.validate(req); err != nil {
		return ConversationsSummary{}, err
	}
	rows, err := s.repo.ListConversations(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return ConversationsSummary{}, err
	}

	out := ConversationsSummary{TenantID: req.TenantID}
	for _, c := range rows {
		out.Total++
		switch c.Status {
		case conversation.StatusNew:
			out.New++
		case conversation.StatusInProgress:
			out.InProgress++
		case conversation.StatusResolved:
			out.Resolved++
		}
		if c.UnreadCount > 0 {
			out.WithUnread++
			out.UnreadTotal += c.UnreadCount
		}
	}
	return out, nil
}

func (s *Service) RatingsSummary(ctx context.Context, req SummaryRequest) (RatingsSummary, error) {
	if err := s.validate(req); err != nil {
		return RatingsSummary{}, err
	}
	events, err := s.repo.ListAuditEvents(ctx, req.TenantID, req.Range.From, req.Range.To, audit.EventTypeRating)
	if err != nil {
		return RatingsSummary{}, err
	}

	out := RatingsSummary{TenantID: req.TenantID, Distribution: map[int]int{}}
	sum := 0
	for _, e := range events {
		var meta struct {
			Rating int `json:"rating"`
		}
		// Events without a readable rating are skipped, not failed.
		if json.Unmarshal([]byte(e.Metadata), &meta) != nil || meta.Rating <= 0 {
			continue
		}
		out.Count++
		out.Distribution[meta.Rating]++
		sum += meta.Rating
	}
	if out.Count > 0 {
		out.Average = float64(sum) / float64(out.Count)
	}
	return out, nil
}

func (s *Service) ActivitySummary(ctx context.Context, req SummaryRequest) (ActivitySummary, error) {
	if err := s.validate(req); err != nil {
		return ActivitySummary{}, err
	}
	events, err := s.repo.ListAuditEvents(ctx, req.TenantID, req.Range.From, req.Range.To,
		audit.EventTypeStatusChanged, audit.EventTypeBotSendFailed)
	if err != nil {
		return ActivitySummary{}, err
	}

	out := ActivitySummary{TenantID: req.TenantID}
	for _, e := range events {
		switch e.Type {
		case audit.EventTypeBotSendFailed:
			out.BotSendFailures++
		case audit.EventTypeStatusChanged:
			out.StatusChanges++
			var meta struct {
				To string `json:"to"`
			}
			if json.Unmarshal([]byte(e.Metadata), &meta) != nil || meta.To != string(conversation.StatusResolved) {
				continue
			}
			if e.Actor == audit.ActorBot {
				out.ResolvedByBot++
			} else {
				out.ResolvedByAgents++
			}
		}
	}
	return out, nil
}

// Summary combines every report for the dashboard overview.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	convs, err := s.ConversationsSummary(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	ratings, err := s.RatingsSummary(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	activity, err := s.ActivitySummary(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Range: req.Range, Conversations: convs, Ratings: ratings, Activity: activity}, nil
}
