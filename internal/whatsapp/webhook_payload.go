package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

var ErrInvalidSignature = errors.New("whatsapp: invalid webhook signature")

// VerifySignature checks header ("sha256=<hex>") against the HMAC of body keyed with appSecret.
func VerifySignature(appSecret string, body []byte, header string) error {
	if appSecret == "" {
		return ErrInvalidSignature
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || sig == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value VerifySignature accepts for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Envelope is the provider webhook body (object=whatsapp_business_account).
type Envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []rawMessage `json:"messages"`
	Statuses []rawStatus  `json:"statuses"`
}

type rawMedia struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type rawMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image       *rawMedia `json:"image"`
	Video       *rawMedia `json:"video"`
	Audio       *rawMedia `json:"audio"`
	Voice       *rawMedia `json:"voice"`
	Document    *rawMedia `json:"document"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Context *struct {
		From string `json:"from"`
		ID   string `json:"id"`
	} `json:"context"`
}

type rawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// InboundKind is the normalized kind of a customer message.
type InboundKind string

const (
	KindText        InboundKind = "text"
	KindImage       InboundKind = "image"
	KindVideo       InboundKind = "video"
	KindAudio       InboundKind = "audio"
	KindDocument    InboundKind = "document"
	KindButtonReply InboundKind = "button_reply"
	KindUnsupported InboundKind = "unsupported"
)

// InboundMedia references provider-hosted media; bytes are fetched separately.
type InboundMedia struct {
	ID       string
	MIMEType string
	Filename string
	Caption  string
}

// ButtonReply is a customer click on a reply button.
type ButtonReply struct {
	ID    string
	Title string
}

// InboundMessage is one customer message, normalized from the envelope.
type InboundMessage struct {
	PhoneNumberID     string
	ProviderMessageID string
	From              string
	ProfileName       string
	Timestamp         time.Time
	Kind              InboundKind

	// RawType is the provider type string; kept for unsupported kinds.
	RawType string

	Text             string
	Media            *InboundMedia
	Reply            *ButtonReply
	QuotedProviderID string
}

// StatusUpdate is one delivery receipt for an outbound message.
type StatusUpdate struct {
	PhoneNumberID     string
	ProviderMessageID string
	Status            string
	RecipientID       string
	Timestamp         time.Time
}

// Events is everything a single webhook delivery carried.
type Events struct {
	Messages []InboundMessage
	Statuses []StatusUpdate
}

func (e Events) Empty() bool { return len(e.Messages) == 0 && len(e.Statuses) == 0 }

// ParseEnvelope decodes a webhook body and flattens every entry/change into events.
// Changes other than "messages" are ignored.
func ParseEnvelope(body []byte) (Events, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Events{}, err
	}

	var out Events
	for _, e := range env.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "" && ch.Field != "messages" {
				continue
			}
			v := ch.Value
			phoneID := v.Metadata.PhoneNumberID

			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = strings.TrimSpace(c.Profile.Name)
			}

			for _, m := range v.Messages {
				in := normalizeMessage(m)
				in.PhoneNumberID = phoneID
				in.ProfileName = names[m.From]
				out.Messages = append(out.Messages, in)
			}
			for _, s := range v.Statuses {
				out.Statuses = append(out.Statuses, StatusUpdate{
					PhoneNumberID:     phoneID,
					ProviderMessageID: s.ID,
					Status:            s.Status,
					RecipientID:       s.RecipientID,
					Timestamp:         parseUnix(s.Timestamp),
				})
			}
		}
	}
	return out, nil
}

func normalizeMessage(m rawMessage) InboundMessage {
	in := InboundMessage{
		ProviderMessageID: m.ID,
		From:              m.From,
		Timestamp:         parseUnix(m.Timestamp),
		RawType:           m.Type,
	}
	if m.Context != nil {
		in.QuotedProviderID = m.Context.ID
	}

	media := func(kind InboundKind, r *rawMedia) {
		if r == nil || r.ID == "" {
			in.Kind = KindUnsupported
			return
		}
		in.Kind = kind
		in.Media = &InboundMedia{ID: r.ID, MIMEType: r.MIMEType, Filename: r.Filename, Caption: r.Caption}
		in.Text = r.Caption
	}

	switch m.Type {
	case "text":
		in.Kind = KindText
		if m.Text != nil {
			in.Text = m.Text.Body
		}
	case "image":
		media(KindImage, m.Image)
	case "video":
		media(KindVideo, m.Video)
	case "audio":
		media(KindAudio, m.Audio)
	case "voice":
		media(KindAudio, m.Voice)
	case "document":
		media(KindDocument, m.Document)
	case "interactive":
		in.Kind = KindUnsupported
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil:
				in.Kind = KindButtonReply
				in.Reply = &ButtonReply{ID: m.Interactive.ButtonReply.ID, Title: m.Interactive.ButtonReply.Title}
			case m.Interactive.ListReply != nil:
				in.Kind = KindButtonReply
				in.Reply = &ButtonReply{ID: m.Interactive.ListReply.ID, Title: m.Interactive.ListReply.Title}
			}
		}
		if in.Reply != nil {
			in.Text = in.Reply.Title
		}
	case "button":
		// Quick-reply buttons on provider-approved templates.
		in.Kind = KindUnsupported
		if m.Button != nil {
			in.Kind = KindButtonReply
			in.Reply = &ButtonReply{ID: m.Button.Payload, Title: m.Button.Text}
			in.Text = m.Button.Text
		}
	default:
		in.Kind = KindUnsupported
	}
	return in
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
