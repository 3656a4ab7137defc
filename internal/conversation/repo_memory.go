package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository enforcing the same (tenant, phone) uniqueness as Postgres.
type MemoryRepo struct {
	mu     sync.Mutex
	byID   map[string]Conversation
	byAddr map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Conversation), byAddr: make(map[string]string)}
}

func addrKey(tenantID, phone string) string { return tenantID + "\x00" + phone }

func (r *MemoryRepo) Insert(ctx context.Context, c Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := addrKey(c.TenantID, c.CustomerPhone)
	if _, ok := r.byAddr[k]; ok {
		return ErrConflict
	}
	r.byID[c.ID] = clone(c)
	r.byAddr[k] = c.ID
	return nil
}

func (r *MemoryRepo) FindByAddress(ctx context.Context, tenantID, customerPhone string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAddr[addrKey(tenantID, customerPhone)]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.TenantID != tenantID {
		return Conversation{}, ErrNotFound
	}
	return clone(c), nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string, f Filter) ([]Conversation, error) {
	r.mu.Lock()
	var out []Conversation
	for _, c := range r.byID {
		if c.TenantID != tenantID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, clone(c))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := activity(out[i]), activity(out[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, tenantID, id string, status Status, at time.Time) (Conversation, Status, error) {
	var prev Status
	c, err := r.mutate(tenantID, id, func(c *Conversation) {
		prev = c.Status
		c.Status = status
		c.UpdatedAt = at
	})
	return c, prev, err
}

func (r *MemoryRepo) Touch(ctx context.Context, tenantID, id string, t Touch) (Conversation, error) {
	return r.mutate(tenantID, id, func(c *Conversation) {
		// Preview and timestamp move together; an older message never replaces a newer preview.
		if c.LastMessageAt == nil || !t.At.Before(*c.LastMessageAt) {
			at := t.At
			c.LastMessage = t.Preview
			c.LastMessageAt = &at
		}
		c.UnreadCount += t.UnreadDelta
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		if t.At.After(c.UpdatedAt) {
			c.UpdatedAt = t.At
		}
	})
}

func (r *MemoryRepo) ResetUnread(ctx context.Context, tenantID, id string, at time.Time) (Conversation, error) {
	return r.mutate(tenantID, id, func(c *Conversation) {
		c.UnreadCount = 0
		c.UpdatedAt = at
	})
}

func (r *MemoryRepo) SetNotes(ctx context.Context, tenantID, id, notes string, at time.Time) (Conversation, error) {
	return r.mutate(tenantID, id, func(c *Conversation) {
		c.Notes = notes
		c.UpdatedAt = at
	})
}

func (r *MemoryRepo) SetCustomerName(ctx context.Context, tenantID, id, name string, at time.Time) (Conversation, error) {
	return r.mutate(tenantID, id, func(c *Conversation) {
		if c.CustomerName == nil {
			n := name
			c.CustomerName = &n
			c.UpdatedAt = at
		}
	})
}

func (r *MemoryRepo) mutate(tenantID, id string, fn func(*Conversation)) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.TenantID != tenantID {
		return Conversation{}, ErrNotFound
	}
	fn(&c)
	r.byID[id] = c
	return clone(c), nil
}

// Count returns how many conversations a tenant has. Test helper.
func (r *MemoryRepo) Count(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.byID {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n
}

func activity(c Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func clone(c Conversation) Conversation {
	if c.CustomerName != nil {
		n := *c.CustomerName
		c.CustomerName = &n
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		c.LastMessageAt = &t
	}
	return c
}
