package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Every token is scoped to exactly one tenant; the tenant id is the subject of all dashboard queries.
type Claims struct {
	jwt.RegisteredClaims

	TenantID  string    `json:"tenant_id"`
	Username  string    `json:"username,omitempty"`
	TokenType TokenType `json:"token_type"`
}
