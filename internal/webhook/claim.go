package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

// Claimer guards a provider message id so concurrent redeliveries run the pipeline once.
// It is an optimization in front of the message store's unique provider id, not a replacement.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const DefaultClaimTTL = 24 * time.Hour

// RedisClaimer claims keys with SET NX so every API instance sees the same claim.
type RedisClaimer struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
}

func NewRedisClaimer(rdb *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisClaimer{rdb: rdb, owner: uuid.NewString(), ttl: ttl}
}

func (r *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	return utils.ClaimOnce(ctx, r.rdb, key, r.owner, r.ttl)
}

func (r *RedisClaimer) Release(ctx context.Context, key string) error {
	return utils.ReleaseClaim(ctx, r.rdb, key, r.owner)
}

// MemoryClaimer is the single-process Claimer.
type MemoryClaimer struct {
	mu    sync.Mutex
	ttl   time.Duration
	keys  map[string]time.Time
	clock func() time.Time
}

func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &MemoryClaimer{ttl: ttl, keys: make(map[string]time.Time), clock: time.Now}
}

func (m *MemoryClaimer) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryClaimer) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func claimKey(tenantID, providerMessageID string) string {
	return "webhook:claim:" + tenantID + ":" + providerMessageID
}
