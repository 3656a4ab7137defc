package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
)

// ErrMediaUnavailable means the media could not be fetched or stored.
// Callers persist a placeholder message instead of dropping the event.
var ErrMediaUnavailable = errors.New("media: unavailable")

// Placeholder is the text stored when inbound media cannot be relayed.
const Placeholder = "[media unavailable]"

// Source fetches provider-hosted media.
type Source interface {
	MediaInfo(ctx context.Context, creds whatsapp.Credentials, mediaID string) (whatsapp.MediaInfo, error)
	Download(ctx context.Context, creds whatsapp.Credentials, url string) ([]byte, error)
}

// Result is a stored media object.
type Result struct {
	URL      string
	Filename string
	MIMEType string
	Data     []byte
}

// Relay copies provider media into durable storage under a tenant-scoped key.
type Relay struct {
	source  Source
	storage Storage
	clock   func() time.Time
}

func NewRelay(source Source, storage Storage) *Relay {
	return &Relay{source: source, storage: storage, clock: time.Now}
}

// Relay fetches ref with the tenant credential and re-uploads it.
// Every failure is reported as ErrMediaUnavailable.
func (r *Relay) Relay(ctx context.Context, creds whatsapp.Credentials, tenantID string, ref whatsapp.InboundMedia) (Result, error) {
	if ref.ID == "" {
		return Result{}, fmt.Errorf("%w: missing media id", ErrMediaUnavailable)
	}
	info, err := r.source.MediaInfo(ctx, creds, ref.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	data, err := r.source.Download(ctx, creds, info.URL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	declared := ref.MIMEType
	if declared == "" {
		declared = info.MIMEType
	}
	res, err := r.put(ctx, tenantID, data, declared, ref.Filename)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	return res, nil
}

// Store saves an agent upload. The MIME type is sniffed when the declared one is missing or generic.
func (r *Relay) Store(ctx context.Context, tenantID string, data []byte, declaredMIME, filename string) (Result, error) {
	if len(data) == 0 {
		return Result{}, errors.New("media: empty upload")
	}
	return r.put(ctx, tenantID, data, declaredMIME, filename)
}

func (r *Relay) put(ctx context.Context, tenantID string, data []byte, declaredMIME, filename string) (Result, error) {
	mt := BaseMIME(declaredMIME)
	if mt == "" || mt == "application/octet-stream" {
		mt = BaseMIME(mimetype.Detect(data).String())
	}
	ext := ExtensionFor(mt)

	now := r.clock().UTC()
	id := uuid.NewString()
	key := fmt.Sprintf("tenants/%s/%04d/%02d/%s%s", tenantID, now.Year(), int(now.Month()), id, ext)

	url, err := r.storage.Put(ctx, key, data, mt)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: url, Filename: Filename(filename, id, mt), MIMEType: mt, Data: data}, nil
}

// BaseMIME strips parameters ("audio/ogg; codecs=opus" -> "audio/ogg").
func BaseMIME(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	base, _, _ := strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// ExtensionFor maps a MIME type to a file extension with a leading dot, or "" when unknown.
func ExtensionFor(mimeType string) string {
	mt := BaseMIME(mimeType)
	if mt == "" {
		return ""
	}
	if m := mimetype.Lookup(mt); m != nil {
		return m.Extension()
	}
	return ""
}

// Filename keeps the provider filename when usable and makes sure its extension matches mimeType.
func Filename(declared, fallbackID, mimeType string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(declared), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = fallbackID
	}
	ext := ExtensionFor(mimeType)
	if ext == "" {
		return name
	}
	cur := path.Ext(name)
	if strings.EqualFold(cur, ext) {
		return name
	}
	if cur != "" && BaseMIME(mime.TypeByExtension(cur)) == BaseMIME(mimeType) {
		return name
	}
	return name + ext
}

// TypeFor classifies a MIME type into a stored message type.
func TypeFor(mimeType string) message.Type {
	mt := BaseMIME(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return message.TypeImage
	case strings.HasPrefix(mt, "video/"):
		return message.TypeVideo
	case strings.HasPrefix(mt, "audio/"):
		return message.TypeAudio
	}
	return message.TypeDocument
}
