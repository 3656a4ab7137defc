package tenant

import (
	"errors"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
)

// Tenant is a registered company account and the isolation boundary for every other record.
//
// Storage (Postgres):
// - tenants(id uuid pk, name, username unique, password_hash, access_token, phone_number_id unique,
//   verify_token, bot_enabled, welcome_template_id, rating_template_id, created_at, updated_at)
type Tenant struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`

	// Provider credentials. Never serialized to the dashboard.
	AccessToken   string `json:"-" db:"access_token"`
	PhoneNumberID string `json:"phone_number_id" db:"phone_number_id"`
	VerifyToken   string `json:"-" db:"verify_token"`

	BotEnabled        bool    `json:"bot_enabled" db:"bot_enabled"`
	WelcomeTemplateID *string `json:"welcome_template_id,omitempty" db:"welcome_template_id"`
	RatingTemplateID  *string `json:"rating_template_id,omitempty" db:"rating_template_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Credentials returns the provider credentials used by the outbound gateway.
func (t Tenant) Credentials() whatsapp.Credentials {
	return whatsapp.Credentials{AccessToken: t.AccessToken, PhoneNumberID: t.PhoneNumberID}
}

// WelcomeTemplate returns the configured welcome template id or "".
func (t Tenant) WelcomeTemplate() string {
	if t.WelcomeTemplateID == nil {
		return ""
	}
	return *t.WelcomeTemplateID
}

// RatingTemplate returns the configured rating template id or "".
func (t Tenant) RatingTemplate() string {
	if t.RatingTemplateID == nil {
		return ""
	}
	return *t.RatingTemplateID
}

var (
	ErrNotFound           = errors.New("tenant: not found")
	ErrInvalidCredentials = errors.New("tenant: invalid credentials")
	ErrInvalidArgument    = errors.New("tenant: invalid argument")
)
