package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/auth"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/inbox"
	"github.com/wb6ya/Wisal-sub000/internal/reporting"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Tenants *tenant.Service
	Inbox   *inbox.Service

	// Audit and Reports are optional; their endpoints answer 404 without them.
	Audit   *audit.Service
	Reports *reporting.Service

	// MaxUploadBytes caps multipart media uploads. Defaults to the provider limit.
	MaxUploadBytes int64
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	auth.TokenPair
	Tenant tenant.Tenant `json:"tenant"`
}

// Login checks tenant credentials and issues a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.Tenants.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), t.ID, t.Username)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "tenant_id", t.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{TokenPair: pair, Tenant: t})
}

type registerRequest struct {
	Name              string  `json:"name"`
	Username          string  `json:"username"`
	Password          string  `json:"password"`
	AccessToken       string  `json:"access_token"`
	PhoneNumberID     string  `json:"phone_number_id"`
	VerifyToken       string  `json:"verify_token"`
	BotEnabled        bool    `json:"bot_enabled"`
	WelcomeTemplateID *string `json:"welcome_template_id,omitempty"`
	RatingTemplateID  *string `json:"rating_template_id,omitempty"`
}

// Register creates a tenant account and signs it in.
func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.Tenants.Create(c.Request.Context(), tenant.Tenant{
		Name:              strings.TrimSpace(req.Name),
		Username:          strings.TrimSpace(req.Username),
		AccessToken:       req.AccessToken,
		PhoneNumberID:     strings.TrimSpace(req.PhoneNumberID),
		VerifyToken:       req.VerifyToken,
		BotEnabled:        req.BotEnabled,
		WelcomeTemplateID: req.WelcomeTemplateID,
		RatingTemplateID:  req.RatingTemplateID,
	}, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), t.ID, t.Username)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{TokenPair: pair, Tenant: t})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me returns the signed-in tenant.
func (h Handlers) Me(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	t, err := h.Tenants.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// --- Conversations ---

func (h Handlers) ListConversations(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	f := conversation.Filter{
		Status: conversation.Status(c.Query("status")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	list, err := h.Inbox.ListConversations(c.Request.Context(), tenantID, f)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []conversation.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h Handlers) GetConversation(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	conv, err := h.Inbox.GetConversation(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h Handlers) ListMessages(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	page, err := h.Inbox.ListMessages(c.Request.Context(), tenantID, c.Param("id"),
		queryInt(c, "page", 1), queryInt(c, "page_size", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Reply sends an agent text message.
func (h Handlers) Reply(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req inbox.ReplyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := h.Inbox.Reply(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// SendMedia accepts a multipart upload in field "file" with an optional "caption".
func (h Handlers) SendMedia(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = whatsapp.MaxMediaBytes
	}
	// Multipart framing adds a little on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	if fh.Size > limit {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	m, err := h.Inbox.SendMedia(c.Request.Context(), tenantID, c.Param("id"), inbox.MediaInput{
		Data:     data,
		MIMEType: fh.Header.Get("Content-Type"),
		Filename: fh.Filename,
		Caption:  c.PostForm("caption"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type statusRequest struct {
	Status conversation.Status `json:"status"`
}

func (h Handlers) SetStatus(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	actor := auth.Username(c.Request.Context())
	conv, err := h.Inbox.SetStatus(c.Request.Context(), tenantID, c.Param("id"), req.Status, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h Handlers) UpdateNotes(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	conv, err := h.Inbox.UpdateNotes(c.Request.Context(), tenantID, c.Param("id"), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h Handlers) MarkRead(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	conv, err := h.Inbox.MarkRead(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Initiate opens (or reuses) a conversation with an approved provider template.
func (h Handlers) Initiate(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req inbox.InitiateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	conv, m, err := h.Inbox.Initiate(c.Request.Context(), tenantID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "message": m})
}

// --- Templates ---

func (h Handlers) ListTemplates(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	list, err := h.Inbox.ListTemplates(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []template.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

type templateRequest struct {
	Name    string            `json:"name"`
	Body    string            `json:"body"`
	Type    template.Type     `json:"type"`
	Buttons []template.Button `json:"buttons"`
}

func (h Handlers) CreateTemplate(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Inbox.CreateTemplate(c.Request.Context(), tenantID, template.Template{
		Name:    req.Name,
		Body:    req.Body,
		Type:    req.Type,
		Buttons: req.Buttons,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// --- Audit ---

func (h Handlers) RecentAudit(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	events, err := h.Audit.Recent(c.Request.Context(), tenantID, queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- Reports ---

const defaultReportWindow = 30 * 24 * time.Hour

// Summary reports over [from, to) given as RFC 3339 query parameters; the default is the last 30 days.
func (h Handlers) Summary(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	to := time.Now().UTC()
	from := to.Add(-defaultReportWindow)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeValidation, "message": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeValidation, "message": "to must be RFC 3339"})
			return
		}
	}
	out, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{
		TenantID: tenantID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func requireTenant(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant required"})
		return "", false
	}
	return tenantID, true
}

// queryInt reads a non-negative integer query parameter; bad input falls back to def.
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
