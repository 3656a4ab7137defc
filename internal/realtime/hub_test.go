package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wb6ya/Wisal-sub000/internal/auth"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/message"
)

func TestHub_FansOutPerTenant(t *testing.T) {
	h := NewHub()
	a1 := h.Subscribe("t1")
	a2 := h.Subscribe("t1")
	b := h.Subscribe("t2")
	defer a1.Close()
	defer a2.Close()
	defer b.Close()

	ev := ConversationUpdated(conversation.Conversation{ID: "c1", TenantID: "t1"})
	if err := h.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, s := range []*Subscription{a1, a2} {
		select {
		case got := <-s.C:
			if got.Type != EventConversationUpdated || got.Conversation.ID != "c1" {
				t.Fatalf("subscriber %d: unexpected event %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
	select {
	case got := <-b.C:
		t.Fatalf("other tenant must not receive events, got %+v", got)
	default:
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("t1")
	defer s.Close()

	for i := 0; i < subscriptionBuffer+10; i++ {
		_ = h.Publish(context.Background(), NewMessage(message.Message{ID: "m", TenantID: "t1"}))
	}
	if h.Dropped() != 10 {
		t.Fatalf("expected 10 dropped events, got %d", h.Dropped())
	}
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("t1")
	s.Close()
	s.Close()
	if h.Subscribers("t1") != 0 {
		t.Fatalf("expected no subscribers")
	}
	if _, ok := <-s.C; ok {
		t.Fatalf("expected closed channel")
	}
	if err := h.Publish(context.Background(), Event{Type: EventMessageNew}); err == nil {
		t.Fatalf("expected error without tenant id")
	}
}

func TestSocketHandler_StreamsTenantEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.Query("tenant"), "tester")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, SocketHandler{Broker: hub}.Handle)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant=t1"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var hello controlFrame
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&hello); err != nil || hello.Type != "connected" {
		t.Fatalf("expected connected frame, got %+v err=%v", hello, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("t1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m := message.Message{ID: "m1", TenantID: "t1", ConversationID: "c1", Status: message.StatusRead}
	_ = hub.Publish(context.Background(), MessageStatus(m))

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventMessageStatus || got.Status == nil || got.Status.MessageID != "m1" || got.Status.Status != message.StatusRead {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSocketHandler_RequiresTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", SocketHandler{Broker: NewHub()}.Handle)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
