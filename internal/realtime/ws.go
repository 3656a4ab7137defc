package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wb6ya/Wisal-sub000/internal/auth"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
)

// SocketHandler upgrades an authenticated dashboard request and streams the tenant's events.
// Frames from the client are read only to detect disconnects and answer pings.
type SocketHandler struct {
	Broker Broker

	// CheckOrigin defaults to allowing every origin; the token is the credential.
	CheckOrigin func(r *http.Request) bool
}

type controlFrame struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id,omitempty"`
}

func (h SocketHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant required"})
		return
	}

	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.CheckOrigin,
	}
	if up.CheckOrigin == nil {
		up.CheckOrigin = func(r *http.Request) bool { return true }
	}
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := NewConnection(tenantID, ws)
	conn.Start()
	sub := h.Broker.Subscribe(tenantID)
	defer func() {
		sub.Close()
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	log.Info("realtime session opened", "session_id", conn.ID)
	if b, err := json.Marshal(controlFrame{Type: "connected", TenantID: tenantID}); err == nil {
		_ = conn.Send(b)
	}

	go pump(conn, sub)

	ws.SetReadLimit(4 << 10)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Info("realtime session closed", "session_id", conn.ID)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		var f controlFrame
		if json.Unmarshal(data, &f) == nil && f.Type == "ping" {
			if b, err := json.Marshal(controlFrame{Type: "pong"}); err == nil {
				_ = conn.Send(b)
			}
		}
	}
}

// pump forwards subscription events to the socket until either side closes.
func pump(conn *Connection, sub *Subscription) {
	for {
		select {
		case <-conn.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if conn.Send(b) != nil {
				return
			}
		}
	}
}
