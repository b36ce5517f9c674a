package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wayfinder/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the web app origin; identity comes from the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and runs the connection until it closes. The
// identity comes from the upgrade request or, failing that, from a first
// AUTH frame within the handshake timeout.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime upgrade failed", zap.Error(err))
		return
	}

	userID, err := h.authenticate(conn, requestToken(r))
	if err != nil {
		h.logger.Info("realtime handshake rejected", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeUnauthenticated, models.ErrConnectionUnauthenticated.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := newClient(h, conn, userID)
	if err := h.Register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeGoingAway, err.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c.sendEnvelope(models.EventConnectionReady, models.ConnectionReadyEvent{
		ConnectionID: c.ID,
		UserID:       userID,
	})
	go c.writePump()
	go c.readPump()
}

// authenticate runs the Connecting state. An empty token means the client
// must send an AUTH frame before the handshake deadline.
func (h *Hub) authenticate(conn *websocket.Conn, token string) (string, error) {
	if h.auth == nil {
		return "", models.ErrConnectionUnauthenticated
	}
	if token == "" {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
		conn.SetReadLimit(maxFrameSize)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", models.ErrConnectionUnauthenticated
		}
		var frame models.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != models.EventAuth {
			return "", models.ErrConnectionUnauthenticated
		}
		token = strings.TrimSpace(frame.Token)
		_ = conn.SetReadDeadline(time.Time{})
	}
	if token == "" {
		return "", models.ErrConnectionUnauthenticated
	}
	userID, err := h.auth(token)
	if err != nil || userID == "" {
		return "", models.ErrConnectionUnauthenticated
	}
	return userID, nil
}

func requestToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
