package whatsapp

import (
	"errors"
	"fmt"
)

// Credentials identify one tenant's WhatsApp Business number at the provider.
type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

func (c Credentials) valid() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

var (
	// ErrProviderAuth means the tenant credential is invalid or expired.
	// The dashboard must ask the tenant to reconnect the account.
	ErrProviderAuth = errors.New("whatsapp: provider authentication failed")

	// ErrProviderRejected means the provider refused this particular request
	// (recipient invalid, template not approved, rate limit, ...). Not retried here.
	ErrProviderRejected = errors.New("whatsapp: provider rejected request")
)

// ProviderError is the typed failure returned for a well-formed provider error response.
type ProviderError struct {
	HTTPStatus int
	Code       int
	Subcode    int
	Type       string
	Message    string
	TraceID    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("whatsapp: provider error http=%d code=%d: %s", e.HTTPStatus, e.Code, e.Message)
}

// Auth reports whether the failure is a credential problem.
func (e *ProviderError) Auth() bool {
	// 190 is an invalid or expired access token; 10 and 200 are missing permissions.
	switch {
	case e.HTTPStatus == 401, e.HTTPStatus == 403:
		return true
	case e.Code == 190, e.Code == 10, e.Code == 200:
		return true
	}
	return false
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderAuth:
		return e.Auth()
	case ErrProviderRejected:
		return !e.Auth()
	}
	return false
}

// Payload is the closed set of outbound message shapes the gateway can send.
type Payload interface {
	messageType() string
}

// Text sends a plain text body. ReplyTo quotes a provider message id.
type Text struct {
	Body       string
	PreviewURL bool
	ReplyTo    string
}

// ImageLink sends an image hosted at a public URL.
type ImageLink struct {
	URL     string
	Caption string
}

// VideoLink sends a video hosted at a public URL.
type VideoLink struct {
	URL     string
	Caption string
}

// DocumentLink sends a document hosted at a public URL.
type DocumentLink struct {
	URL      string
	Filename string
	Caption  string
}

// MediaKind names the provider media object types.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// MediaUpload uploads raw bytes to the provider first and sends them by media id.
type MediaUpload struct {
	Kind     MediaKind
	Data     []byte
	MIMEType string
	Filename string
	Caption  string
}

// TemplateByName sends a provider-approved message template.
type TemplateByName struct {
	Name     string
	Language string
}

// Interactive sends a reply-button message.
type Interactive struct {
	Body    string
	Buttons []Button
}

// Button is one reply button. The provider limits titles to 20 characters and messages to 3 buttons.
type Button struct {
	ID    string
	Title string
}

const (
	MaxButtons          = 3
	MaxButtonTitleRunes = 20
	MaxBodyRunes        = 1024
)

func (Text) messageType() string           { return "text" }
func (ImageLink) messageType() string      { return "image" }
func (VideoLink) messageType() string      { return "video" }
func (DocumentLink) messageType() string   { return "document" }
func (p MediaUpload) messageType() string  { return string(p.Kind) }
func (TemplateByName) messageType() string { return "template" }
func (Interactive) messageType() string    { return "interactive" }
