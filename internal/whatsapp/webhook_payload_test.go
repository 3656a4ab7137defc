package whatsapp

import (
	"errors"
	"testing"
)

const textEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "PN1"},
        "contacts": [{"profile": {"name": "Sara"}, "wa_id": "966500000001"}],
        "messages": [{
          "from": "966500000001",
          "id": "wamid.A",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hello"},
          "context": {"from": "15550001111", "id": "wamid.Q"}
        }]
      }
    }]
  }]
}`

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("secret", body)

	if err := VerifySignature("secret", body, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := VerifySignature("other", body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}
	if err := VerifySignature("secret", []byte(`{"a":2}`), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body")
	}
	for _, h := range []string{"", "sha1=abc", "sha256=", "sha256=zz"} {
		if err := VerifySignature("secret", body, h); err == nil {
			t.Fatalf("expected failure for header %q", h)
		}
	}
}

func TestParseEnvelope_TextMessage(t *testing.T) {
	ev, err := ParseEnvelope([]byte(textEnvelope))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ev.Messages) != 1 || len(ev.Statuses) != 0 {
		t.Fatalf("unexpected events: %+v", ev)
	}
	m := ev.Messages[0]
	if m.PhoneNumberID != "PN1" || m.ProviderMessageID != "wamid.A" || m.From != "966500000001" {
		t.Fatalf("unexpected message ids: %+v", m)
	}
	if m.Kind != KindText || m.Text != "hello" {
		t.Fatalf("unexpected text: %+v", m)
	}
	if m.ProfileName != "Sara" {
		t.Fatalf("expected profile name, got %q", m.ProfileName)
	}
	if m.QuotedProviderID != "wamid.Q" {
		t.Fatalf("expected quoted id, got %q", m.QuotedProviderID)
	}
	if m.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected timestamp: %v", m.Timestamp)
	}
}

func TestParseEnvelope_ButtonReplyAndMedia(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{
	  "metadata":{"phone_number_id":"PN1"},
	  "messages":[
	    {"from":"1","id":"w1","timestamp":"1","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"tpl-2","title":"Sales"}}},
	    {"from":"1","id":"w2","timestamp":"2","type":"document","document":{"id":"m1","mime_type":"application/pdf","filename":"invoice"}},
	    {"from":"1","id":"w3","timestamp":"3","type":"sticker","sticker":{"id":"s"}},
	    {"from":"1","id":"w4","timestamp":"4","type":"voice","voice":{"id":"v1","mime_type":"audio/ogg; codecs=opus"}}
	  ]}}]}]}`

	ev, err := ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ev.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(ev.Messages))
	}
	if r := ev.Messages[0]; r.Kind != KindButtonReply || r.Reply == nil || r.Reply.ID != "tpl-2" || r.Text != "Sales" {
		t.Fatalf("unexpected button reply: %+v", r)
	}
	if d := ev.Messages[1]; d.Kind != KindDocument || d.Media == nil || d.Media.ID != "m1" || d.Media.Filename != "invoice" {
		t.Fatalf("unexpected document: %+v", d)
	}
	if s := ev.Messages[2]; s.Kind != KindUnsupported || s.RawType != "sticker" {
		t.Fatalf("unexpected sticker: %+v", s)
	}
	if v := ev.Messages[3]; v.Kind != KindAudio || v.Media == nil || v.Media.ID != "v1" {
		t.Fatalf("unexpected voice note: %+v", v)
	}
}

func TestParseEnvelope_Statuses(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{
	  "metadata":{"phone_number_id":"PN1"},
	  "statuses":[{"id":"wamid.S","status":"delivered","timestamp":"1700000001","recipient_id":"966"}]}}]}]}`

	ev, err := ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ev.Statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(ev.Statuses))
	}
	s := ev.Statuses[0]
	if s.ProviderMessageID != "wamid.S" || s.Status != "delivered" || s.PhoneNumberID != "PN1" {
		t.Fatalf("unexpected status: %+v", s)
	}
}

func TestParseEnvelope_RejectsMalformedJSON(t *testing.T) {
	if _, err := ParseEnvelope([]byte("{")); err == nil {
		t.Fatalf("expected error")
	}
	ev, err := ParseEnvelope([]byte(`{"object":"page"}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ev.Empty() {
		t.Fatalf("expected no events")
	}
}
