package handlers

import (
	"wayfinder/services/realtime"

	"github.com/gin-gonic/gin"
)

type RealtimeHandler struct {
	Hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub}
}

// ServeWS upgrades GET /api/realtime. Authentication happens inside the
// handshake so browsers can pass the token as a query parameter or frame.
func (h *RealtimeHandler) ServeWS(c *gin.Context) {
	h.Hub.Serve(c.Writer, c.Request)
}
