package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/auth"
	"github.com/wb6ya/Wisal-sub000/internal/config"
	"github.com/wb6ya/Wisal-sub000/internal/httpapi"
	"github.com/wb6ya/Wisal-sub000/internal/inbox"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/reporting"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/webhook"
	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

type routeDeps struct {
	cfg      config.Config
	db       *sql.DB
	rdb      *redis.Client
	auth     *auth.Manager
	tenants  *tenant.Service
	inbox    *inbox.Service
	audit    *audit.Service
	reports  *reporting.Service
	broker   realtime.Broker
	claims   webhook.Claimer
	mediaDir string
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
			return
		}
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.Static("/media", d.mediaDir)

	// Provider webhooks (public, signature-checked).
	{
		h := webhook.Handler{
			AppSecret: d.cfg.WhatsApp.AppSecret,
			Tenants:   d.tenants,
			Processor: d.inbox,
			Claims:    d.claims,
		}
		r.GET("/webhooks/whatsapp", h.Verify)
		r.POST("/webhooks/whatsapp", h.Receive)
	}

	h := httpapi.Handlers{
		Auth:    d.auth,
		Tenants: d.tenants,
		Inbox:   d.inbox,
		Audit:   d.audit,
		Reports: d.reports,
	}

	// AUTH routes (token issuance)
	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	limiter := httpapi.NewTenantRateLimiter(d.cfg.Limits.RatePerSecond, d.cfg.Limits.Burst)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		// The realtime socket is long-lived; it is not counted against the request limiter.
		v1.GET("/ws", realtime.SocketHandler{Broker: d.broker}.Handle)

		api := v1.Group("")
		api.Use(limiter.Middleware())

		api.GET("/me", h.Me)

		conversations := api.Group("/conversations")
		{
			conversations.GET("", h.ListConversations)
			conversations.POST("", h.Initiate)
			conversations.GET("/:id", h.GetConversation)
			conversations.GET("/:id/messages", h.ListMessages)
			conversations.POST("/:id/messages", h.Reply)
			conversations.POST("/:id/media", h.SendMedia)
			conversations.PATCH("/:id/status", h.SetStatus)
			conversations.PUT("/:id/notes", h.UpdateNotes)
			conversations.POST("/:id/read", h.MarkRead)
		}

		templates := api.Group("/templates")
		{
			templates.GET("", h.ListTemplates)
			templates.POST("", h.CreateTemplate)
		}

		api.GET("/audit", h.RecentAudit)
		api.GET("/reports/summary", h.Summary)
	}
}
