package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Conversations []conversation.Conversation
	Events        []audit.Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

func (r *MemoryRepo) ListConversations(ctx context.Context, tenantID string, from, to time.Time) ([]conversation.Conversation, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]conversation.Conversation, 0)
	for _, c := range r.Conversations {
		if c.TenantID == tenantID && inRange(c.CreatedAt, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListAuditEvents(ctx context.Context, tenantID string, from, to time.Time, types ...audit.EventType) ([]audit.Event, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Event, 0)
	for _, e := range r.Events {
		if e.TenantID != tenantID || !inRange(e.CreatedAt, from, to) {
			continue
		}
		if len(types) > 0 && !hasType(types, e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func hasType(types []audit.EventType, t audit.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
