package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// TenantResolver maps provider identifiers to tenants.
type TenantResolver interface {
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (tenant.Tenant, error)
	MatchVerifyToken(ctx context.Context, token string) (bool, error)
}

// Processor runs the inbound pipeline for one event.
type Processor interface {
	HandleInbound(ctx context.Context, t tenant.Tenant, m whatsapp.InboundMessage) error
	HandleStatus(ctx context.Context, t tenant.Tenant, s whatsapp.StatusUpdate) error
}

const (
	defaultProcessTimeout = 20 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Handler is the provider-facing ingress.
//
// POST: verify signature -> parse -> route each message/status -> always 200.
// An invalid signature is the only non-200 response and is returned before any parsing.
// A body over MaxBodyBytes cannot be verified and counts as an invalid signature.
type Handler struct {
	AppSecret string
	Tenants   TenantResolver
	Processor Processor
	Claims    Claimer

	// ProcessTimeout bounds the work done for one delivery.
	ProcessTimeout time.Duration
	MaxBodyBytes   int64
}

// Verify answers the provider's subscription handshake.
func (h Handler) Verify(c *gin.Context) {
	log := logger.FromGin(c)

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode != "subscribe" || token == "" {
		c.Status(http.StatusForbidden)
		return
	}
	ok, err := h.Tenants.MatchVerifyToken(c.Request.Context(), token)
	if err != nil {
		log.Error("verify token lookup failed", "err", err)
		c.Status(http.StatusForbidden)
		return
	}
	if !ok {
		log.Warn("webhook verification rejected")
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive handles a provider event delivery.
func (h Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.Status(http.StatusOK)
		return
	}
	if int64(len(body)) > limit {
		// A truncated body cannot be verified, so it is rejected like a bad signature.
		// Signature failures are the only non-200 responses.
		log.Warn("webhook body too large", "limit", limit)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	if err := whatsapp.VerifySignature(h.AppSecret, body, c.GetHeader(whatsapp.SignatureHeader)); err != nil {
		log.Warn("webhook signature rejected", "err", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// Processing outlives a provider that hangs up early.
	timeout := h.ProcessTimeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
	defer cancel()

	h.dispatch(ctx, body)
	c.Status(http.StatusOK)
}

func (h Handler) dispatch(ctx context.Context, body []byte) {
	log := logger.From(ctx)

	events, err := whatsapp.ParseEnvelope(body)
	if err != nil {
		log.Warn("webhook envelope unreadable", "err", err)
		return
	}
	if events.Empty() {
		log.Debug("webhook delivery without messages or statuses")
		return
	}

	tenants := map[string]*tenant.Tenant{}
	resolve := func(phoneNumberID string) *tenant.Tenant {
		if t, ok := tenants[phoneNumberID]; ok {
			return t
		}
		t, err := h.Tenants.ByPhoneNumberID(ctx, phoneNumberID)
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				log.Warn("webhook for unknown phone number", "phone_number_id", phoneNumberID)
			} else {
				log.Error("tenant lookup failed", "phone_number_id", phoneNumberID, "err", err)
			}
			tenants[phoneNumberID] = nil
			return nil
		}
		tenants[phoneNumberID] = &t
		return &t
	}

	for _, m := range events.Messages {
		t := resolve(m.PhoneNumberID)
		if t == nil {
			continue
		}
		h.handleMessage(ctx, *t, m)
	}
	for _, s := range events.Statuses {
		t := resolve(s.PhoneNumberID)
		if t == nil {
			continue
		}
		if err := guard(func() error { return h.Processor.HandleStatus(ctx, *t, s) }); err != nil {
			log.Error("status processing failed", "tenant_id", t.ID, "provider_message_id", s.ProviderMessageID, "err", err)
		}
	}
}

func (h Handler) handleMessage(ctx context.Context, t tenant.Tenant, m whatsapp.InboundMessage) {
	log := logger.From(ctx).With("tenant_id", t.ID, "provider_message_id", m.ProviderMessageID)

	key := claimKey(t.ID, m.ProviderMessageID)
	if h.Claims != nil && m.ProviderMessageID != "" {
		ok, err := h.Claims.Claim(ctx, key)
		switch {
		case err != nil:
			// The store still dedupes; continue without the guard.
			log.Warn("claim unavailable", "err", err)
		case !ok:
			log.Debug("message already claimed")
			return
		}
	}

	err := guard(func() error { return h.Processor.HandleInbound(ctx, t, m) })
	if err == nil {
		return
	}
	log.Error("inbound processing failed", "err", err)
	if h.Claims != nil && m.ProviderMessageID != "" {
		if rerr := h.Claims.Release(ctx, key); rerr != nil {
			log.Warn("claim release failed", "err", rerr)
		}
	}
}

// guard turns a panic in fn into an error so one bad event cannot break the acknowledgment.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
