package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// MaxMediaBytes caps provider media downloads (the Cloud API limit for documents).
const MaxMediaBytes = 100 << 20

// ClientConfig configures the Cloud API client.
type ClientConfig struct {
	BaseURL string
	Version string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client calls the WhatsApp Cloud API on behalf of a tenant.
// Every call is bounded by the HTTP client timeout and is never retried here.
type Client struct {
	baseURL string
	version string
	http    *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := cfg.Version
	if version == "" {
		version = "v21.0"
	}
	return &Client{baseURL: base, version: version, http: hc}
}

type outgoingMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Context          *messageContext  `json:"context,omitempty"`
	Text             *textBody        `json:"text,omitempty"`
	Image            *mediaObject     `json:"image,omitempty"`
	Video            *mediaObject     `json:"video,omitempty"`
	Audio            *mediaObject     `json:"audio,omitempty"`
	Document         *mediaObject     `json:"document,omitempty"`
	Template         *templateObject  `json:"template,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
}

type messageContext struct {
	MessageID string `json:"message_id"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type mediaObject struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type templateObject struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type interactiveBody struct {
	Type   string            `json:"type"`
	Body   interactiveText   `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveText struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons []interactiveButton `json:"buttons"`
}

type interactiveButton struct {
	Type  string     `json:"type"`
	Reply replyTitle `json:"reply"`
}

type replyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorEnvelope struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// Send delivers payload to the recipient and returns the provider message id.
// Provider refusals come back as *ProviderError (matching ErrProviderAuth or ErrProviderRejected).
func (c *Client) Send(ctx context.Context, creds Credentials, to string, p Payload) (string, error) {
	if !creds.valid() {
		return "", &ProviderError{HTTPStatus: http.StatusUnauthorized, Message: "tenant is not connected"}
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("whatsapp: recipient is required")
	}
	if p == nil {
		return "", errors.New("whatsapp: payload is required")
	}

	msg, err := c.buildMessage(ctx, creds, to, p)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(creds.PhoneNumberID, "messages"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out sendResponse
	if err := c.do(req, creds, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsapp: send response has no message id")
	}
	return out.Messages[0].ID, nil
}

func (c *Client) buildMessage(ctx context.Context, creds Credentials, to string, p Payload) (outgoingMessage, error) {
	msg := outgoingMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             p.messageType(),
	}

	switch v := p.(type) {
	case Text:
		if strings.TrimSpace(v.Body) == "" {
			return msg, errors.New("whatsapp: text body is required")
		}
		msg.Text = &textBody{PreviewURL: v.PreviewURL, Body: v.Body}
		if v.ReplyTo != "" {
			msg.Context = &messageContext{MessageID: v.ReplyTo}
		}
	case ImageLink:
		msg.Image = &mediaObject{Link: v.URL, Caption: v.Caption}
	case VideoLink:
		msg.Video = &mediaObject{Link: v.URL, Caption: v.Caption}
	case DocumentLink:
		msg.Document = &mediaObject{Link: v.URL, Filename: v.Filename, Caption: v.Caption}
	case MediaUpload:
		id, err := c.UploadMedia(ctx, creds, v.Data, v.MIMEType, v.Filename)
		if err != nil {
			return msg, err
		}
		obj := &mediaObject{ID: id}
		switch v.Kind {
		case MediaImage:
			obj.Caption = v.Caption
			msg.Image = obj
		case MediaVideo:
			obj.Caption = v.Caption
			msg.Video = obj
		case MediaAudio:
			msg.Audio = obj
		case MediaDocument:
			obj.Caption = v.Caption
			obj.Filename = v.Filename
			msg.Document = obj
		default:
			return msg, fmt.Errorf("whatsapp: unsupported media kind %q", v.Kind)
		}
	case TemplateByName:
		if v.Name == "" {
			return msg, errors.New("whatsapp: template name is required")
		}
		lang := v.Language
		if lang == "" {
			lang = "en_US"
		}
		msg.Template = &templateObject{Name: v.Name, Language: templateLanguage{Code: lang}}
	case Interactive:
		if len(v.Buttons) == 0 || len(v.Buttons) > MaxButtons {
			return msg, fmt.Errorf("whatsapp: interactive message needs 1-%d buttons, got %d", MaxButtons, len(v.Buttons))
		}
		ib := &interactiveBody{Type: "button", Body: interactiveText{Text: v.Body}}
		for _, b := range v.Buttons {
			ib.Action.Buttons = append(ib.Action.Buttons, interactiveButton{
				Type:  "reply",
				Reply: replyTitle{ID: b.ID, Title: b.Title},
			})
		}
		msg.Interactive = ib
	default:
		return msg, fmt.Errorf("whatsapp: unsupported payload %T", p)
	}
	return msg, nil
}

// UploadMedia stores raw bytes at the provider and returns the media id.
func (c *Client) UploadMedia(ctx context.Context, creds Credentials, data []byte, mimeType, filename string) (string, error) {
	if !creds.valid() {
		return "", &ProviderError{HTTPStatus: http.StatusUnauthorized, Message: "tenant is not connected"}
	}
	if len(data) == 0 {
		return "", errors.New("whatsapp: media data is empty")
	}
	if filename == "" {
		filename = "upload"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("messaging_product", "whatsapp")
	_ = mw.WriteField("type", mimeType)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(creds.PhoneNumberID, "media"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(req, creds, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("whatsapp: upload response has no media id")
	}
	return out.ID, nil
}

// MediaInfo is the provider metadata for an uploaded or received media object.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// MediaInfo resolves a media id to its short-lived download URL.
func (c *Client) MediaInfo(ctx context.Context, creds Credentials, mediaID string) (MediaInfo, error) {
	if mediaID == "" {
		return MediaInfo{}, errors.New("whatsapp: media id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(mediaID), nil)
	if err != nil {
		return MediaInfo{}, err
	}
	var out MediaInfo
	if err := c.do(req, creds, &out); err != nil {
		return MediaInfo{}, err
	}
	if out.URL == "" {
		return MediaInfo{}, errors.New("whatsapp: media info has no url")
	}
	return out, nil
}

// Download fetches media bytes from a URL returned by MediaInfo.
func (c *Client) Download(ctx context.Context, creds Credentials, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: download body: %w", err)
	}
	if int64(len(data)) > MaxMediaBytes {
		return nil, fmt.Errorf("whatsapp: media exceeds %d bytes", MaxMediaBytes)
	}
	return data, nil
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + c.version + "/" + strings.Join(parts, "/")
}

func (c *Client) do(req *http.Request, creds Credentials, out any) error {
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("whatsapp: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	pe := &ProviderError{HTTPStatus: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		pe.Code = env.Error.Code
		pe.Subcode = env.Error.ErrorSubcode
		pe.Type = env.Error.Type
		pe.Message = env.Error.Message
		pe.TraceID = env.Error.FBTraceID
	}
	return pe
}
