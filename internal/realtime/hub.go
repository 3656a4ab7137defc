package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Publisher sends an event to every session of the owning tenant.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Broker is a topic-per-tenant publish/subscribe abstraction.
type Broker interface {
	Publisher
	Subscribe(tenantID string) *Subscription
}

// Subscription is one session's view of its tenant topic.
// Delivery is best effort: events are dropped when the buffer is full and never replayed.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	hub      *Hub
	tenantID string
	once     sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

const subscriptionBuffer = 64

// Hub is the in-process broker: a registry of subscriptions keyed by tenant id.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Subscription]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{})}
}

var _ Broker = (*Hub)(nil)

func (h *Hub) Subscribe(tenantID string) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	s := &Subscription{C: ch, ch: ch, hub: h, tenantID: tenantID}

	h.mu.Lock()
	topic := h.topics[tenantID]
	if topic == nil {
		topic = make(map[*Subscription]struct{})
		h.topics[tenantID] = topic
	}
	topic[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Publish(ctx context.Context, e Event) error {
	if e.TenantID == "" {
		return errors.New("realtime: tenant_id required")
	}
	h.deliver(e)
	return nil
}

// deliver never blocks the publisher.
func (h *Hub) deliver(e Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.topics[e.TenantID] {
		select {
		case s.ch <- e:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the live subscription count for a tenant.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[tenantID])
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topic := h.topics[s.tenantID]
	if _, ok := topic[s]; !ok {
		return
	}
	delete(topic, s)
	if len(topic) == 0 {
		delete(h.topics, s.tenantID)
	}
	close(s.ch)
}
