package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "inbox:tenant:"

// TenantChannel is the Redis pub/sub channel for one tenant.
func TenantChannel(tenantID string) string { return channelPrefix + tenantID }

const (
	defaultRetryMin = 500 * time.Millisecond
	defaultRetryMax = 30 * time.Second
)

// RedisBroker fans events out across API instances.
// Publish goes to Redis only; Run relays every tenant channel into the local hub,
// so a local event reaches local sessions exactly once.
type RedisBroker struct {
	rdb *redis.Client
	hub *Hub
	log *slog.Logger

	retryMin time.Duration
	retryMax time.Duration
	restarts atomic.Int64
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, hub: hub, log: log, retryMin: defaultRetryMin, retryMax: defaultRetryMax}
}

var _ Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	if e.TenantID == "" {
		return errors.New("realtime: tenant_id required")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, TenantChannel(e.TenantID), payload).Err()
}

func (b *RedisBroker) Subscribe(tenantID string) *Subscription {
	return b.hub.Subscribe(tenantID)
}

// Restarts is how many times the relay lost its subscription and resubscribed.
func (b *RedisBroker) Restarts() int64 { return b.restarts.Load() }

// Run relays Redis messages into the local hub until ctx is canceled.
// A lost subscription is retried with capped exponential backoff.
func (b *RedisBroker) Run(ctx context.Context) error {
	wait := b.retryMin
	for {
		subscribed, err := b.relay(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			wait = b.retryMin
		}
		b.restarts.Add(1)
		b.log.Warn("realtime relay lost, resubscribing", "err", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		wait *= 2
		if wait > b.retryMax {
			wait = b.retryMax
		}
	}
}

// relay runs one subscription. subscribed reports whether the subscribe succeeded.
func (b *RedisBroker) relay(ctx context.Context) (subscribed bool, err error) {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return false, err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("realtime: subscription closed")
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warn("realtime relay decode failed", "channel", msg.Channel, "err", err)
				continue
			}
			if e.TenantID == "" {
				e.TenantID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			b.hub.deliver(e)
		}
	}
}
