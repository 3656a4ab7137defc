package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testCreds = Credentials{AccessToken: "tok", PhoneNumberID: "PN1"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Version: "v21.0"})
}

func TestClient_SendText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v21.0/PN1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`)
	})

	id, err := c.Send(context.Background(), testCreds, "966500000001", Text{Body: "hi", ReplyTo: "wamid.Q"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.OUT" {
		t.Fatalf("unexpected id %q", id)
	}
	if got["type"] != "text" || got["to"] != "966500000001" {
		t.Fatalf("unexpected body: %v", got)
	}
	ctx, _ := got["context"].(map[string]any)
	if ctx["message_id"] != "wamid.Q" {
		t.Fatalf("expected reply context, got %v", got["context"])
	}
}

func TestClient_SendInteractive(t *testing.T) {
	var raw []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"messages":[{"id":"wamid.I"}]}`)
	})

	_, err := c.Send(context.Background(), testCreds, "1", Interactive{
		Body:    "Pick one",
		Buttons: []Button{{ID: "tpl-2", Title: "Sales"}, {ID: "tpl-3", Title: "Support"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"type":"button"`) || !strings.Contains(s, `"id":"tpl-2"`) || !strings.Contains(s, `"title":"Support"`) {
		t.Fatalf("unexpected interactive body: %s", s)
	}
}

func TestClient_SendRejectsTooManyButtons(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	_, err := c.Send(context.Background(), testCreds, "1", Interactive{
		Body:    "x",
		Buttons: []Button{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}, {ID: "3", Title: "c"}, {ID: "4", Title: "d"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestClient_ProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"expired token", http.StatusUnauthorized, `{"error":{"message":"Session has expired","type":"OAuthException","code":190}}`, ErrProviderAuth},
		{"token code on 400", http.StatusBadRequest, `{"error":{"message":"Invalid OAuth access token","code":190}}`, ErrProviderAuth},
		{"token scope", http.StatusForbidden, `{"error":{"message":"Application does not have permission for this action","code":10}}`, ErrProviderAuth},
		{"permission code on 400", http.StatusBadRequest, `{"error":{"message":"Permissions error","code":200}}`, ErrProviderAuth},
		{"recipient invalid", http.StatusBadRequest, `{"error":{"message":"Recipient not valid","code":131030}}`, ErrProviderRejected},
		{"rate limited", http.StatusTooManyRequests, `not json`, ErrProviderRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.Send(context.Background(), testCreds, "1", Text{Body: "x"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var pe *ProviderError
			if !errors.As(err, &pe) || pe.HTTPStatus != tc.status {
				t.Fatalf("expected *ProviderError with status %d, got %v", tc.status, err)
			}
		})
	}
}

func TestClient_MissingCredentialsIsAuthError(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Send(context.Background(), Credentials{}, "1", Text{Body: "x"})
	if !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("expected ErrProviderAuth, got %v", err)
	}
}

func TestClient_UploadThenSendByID(t *testing.T) {
	var sent map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/PN1/media":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("multipart: %v", err)
			}
			if r.FormValue("messaging_product") != "whatsapp" {
				t.Errorf("missing messaging_product")
			}
			_, _ = io.WriteString(w, `{"id":"media-1"}`)
		case "/v21.0/PN1/messages":
			_ = json.NewDecoder(r.Body).Decode(&sent)
			_, _ = io.WriteString(w, `{"messages":[{"id":"wamid.M"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	id, err := c.Send(context.Background(), testCreds, "1", MediaUpload{
		Kind: MediaAudio, Data: []byte("OggS"), MIMEType: "audio/ogg", Filename: "note.ogg",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.M" {
		t.Fatalf("unexpected id %q", id)
	}
	audio, _ := sent["audio"].(map[string]any)
	if sent["type"] != "audio" || audio["id"] != "media-1" {
		t.Fatalf("unexpected body: %v", sent)
	}
}

func TestClient_MediaInfoAndDownload(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/media-9":
			_, _ = io.WriteString(w, `{"id":"media-9","url":"`+srvURL+`/blob/9","mime_type":"image/jpeg","file_size":3}`)
		case "/blob/9":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	info, err := c.MediaInfo(context.Background(), testCreds, "media-9")
	if err != nil {
		t.Fatalf("media info: %v", err)
	}
	if info.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected mime %q", info.MIMEType)
	}
	data, err := c.Download(context.Background(), testCreds, info.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("unexpected payload length %d", len(data))
	}

	if _, err := c.MediaInfo(context.Background(), testCreds, "missing"); err == nil {
		t.Fatalf("expected error for unknown media")
	}
}
