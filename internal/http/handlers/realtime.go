package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/sse/stream
// Each connection gets its own client on the caller's owner channel, so
// several tabs can stream the same chat.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	who := ctxutil.GetIdentity(c.Request.Context())
	owner := who.OwnerKey()
	if owner == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotAuthenticated)
		return
	}
	client := h.hub.NewSSEClient(owner)
	h.hub.AddChannel(client, owner)
	h.log.Debug("SSE stream open", "owner", owner, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "owner", owner, "client_id", client.ID)
}
