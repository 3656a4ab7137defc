package message

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps messages in memory with the same provider-id uniqueness as Postgres.
type MemoryRepo struct {
	mu         sync.Mutex
	byID       map[string]Message
	byProvider map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Message), byProvider: make(map[string]string)}
}

func (r *MemoryRepo) Insert(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ProviderMessageID != nil {
		if _, ok := r.byProvider[*m.ProviderMessageID]; ok {
			return ErrDuplicateMessage
		}
		r.byProvider[*m.ProviderMessageID] = m.ID
	}
	r.byID[m.ID] = m
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.TenantID != tenantID {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepo) FindByProviderID(ctx context.Context, tenantID, providerMessageID string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byProviderLocked(tenantID, providerMessageID)
}

func (r *MemoryRepo) AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, status DeliveryStatus) (Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.byProviderLocked(tenantID, providerMessageID)
	if err != nil {
		return Message{}, false, err
	}
	if status.Rank() <= m.Status.Rank() {
		return m, false, nil
	}
	m.Status = status
	r.byID[m.ID] = m
	return m, true, nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error) {
	r.mu.Lock()
	var out []Message
	for _, m := range r.byID {
		if m.TenantID == tenantID && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset < 0 || offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored message for a conversation, oldest first. Test helper.
func (r *MemoryRepo) All(conversationID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.byID {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) byProviderLocked(tenantID, providerMessageID string) (Message, error) {
	id, ok := r.byProvider[providerMessageID]
	if !ok {
		return Message{}, ErrNotFound
	}
	m := r.byID[id]
	if m.TenantID != tenantID {
		return Message{}, ErrNotFound
	}
	return m, nil
}
