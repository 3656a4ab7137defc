package tenant

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewMemoryRepo(seed ...Tenant) *MemoryRepo {
	r := &MemoryRepo{tenants: make(map[string]Tenant)}
	for _, t := range seed {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (Tenant, error) {
	return r.find(func(t Tenant) bool { return t.PhoneNumberID == phoneNumberID })
}

func (r *MemoryRepo) GetByUsername(ctx context.Context, username string) (Tenant, error) {
	return r.find(func(t Tenant) bool { return t.Username == username })
}

func (r *MemoryRepo) ListVerifyTokens(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, t := range r.tenants {
		if t.VerifyToken != "" {
			out = append(out, t.VerifyToken)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Insert(ctx context.Context, t Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.ID == t.ID || existing.Username == t.Username {
			return ErrInvalidArgument
		}
		if t.PhoneNumberID != "" && existing.PhoneNumberID == t.PhoneNumberID {
			return ErrInvalidArgument
		}
	}
	r.tenants[t.ID] = t
	return nil
}

// Put replaces a tenant record. Test helper for settings changes.
func (r *MemoryRepo) Put(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *MemoryRepo) find(match func(Tenant) bool) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if match(t) {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}
