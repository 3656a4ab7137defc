package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/inbox"
	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/reporting"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// Error codes returned to the dashboard. The UI keys off these, not messages.
const (
	codeValidation        = "validation_error"
	codeNotFound          = "not_found"
	codeUnauthorized      = "invalid_credentials"
	codeReconnectRequired = "provider_reconnect_required"
	codeProviderRejected  = "provider_rejected"
	codeInternal          = "internal_error"
)

// writeError maps service errors to HTTP responses. Provider auth and provider
// rejection stay distinct so the UI can tell "fix your settings" from "this send failed".
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	body := gin.H{"error": code}

	switch status {
	case http.StatusBadRequest:
		body["message"] = err.Error()
	case http.StatusForbidden, http.StatusBadGateway:
		body["message"] = err.Error()
		logger.FromGin(c).Warn("provider send failed", "err", err)
	case http.StatusInternalServerError:
		logger.FromGin(c).Error("request failed", "err", err)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, inbox.ErrValidation),
		errors.Is(err, conversation.ErrInvalidStatus),
		errors.Is(err, conversation.ErrInvalidInput),
		errors.Is(err, message.ErrInvalidMessage),
		errors.Is(err, template.ErrInvalidTemplate),
		errors.Is(err, tenant.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, message.ErrNotFound),
		errors.Is(err, template.ErrNotFound),
		errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, whatsapp.ErrProviderAuth):
		return http.StatusForbidden, codeReconnectRequired
	case errors.Is(err, whatsapp.ErrProviderRejected):
		return http.StatusBadGateway, codeProviderRejected
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
