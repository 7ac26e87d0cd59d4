package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
	auth services.AuthService
}

func NewChatHandler(chat services.ChatService, auth services.AuthService) *ChatHandler {
	return &ChatHandler{chat: chat, auth: auth}
}

func requestScope(c *gin.Context) (dbctx.Context, ctxutil.Identity) {
	ctx := c.Request.Context()
	return dbctx.Context{Ctx: ctx}, ctxutil.GetIdentity(ctx)
}

func uuidParam(c *gin.Context, name string, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}

type createSessionReq struct {
	FirstMessage string `json:"firstMessage"`
}

// POST /api/sessions
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	session, err := h.chat.CreateSession(dbc, who, req.FirstMessage)
	if err != nil {
		response.RespondServiceError(c, "create_session_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"session": session})
}

// GET /api/sessions
func (h *ChatHandler) ListSessions(c *gin.Context) {
	dbc, who := requestScope(c)
	sessions, err := h.chat.ListSessions(dbc, who)
	if err != nil {
		response.RespondServiceError(c, "list_sessions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	dbc, who := requestScope(c)
	session, err := h.chat.GetSession(dbc, who, sessionID)
	if err != nil {
		response.RespondServiceError(c, "get_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// GET /api/sessions/:id/access
func (h *ChatHandler) ValidateAccess(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	dbc, who := requestScope(c)
	allowed, err := h.chat.ValidateAccess(dbc, who, sessionID)
	if err != nil {
		response.RespondServiceError(c, "validate_access_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"hasAccess": allowed})
}

type updateSessionReq struct {
	Title string `json:"title" binding:"required"`
}

// PATCH /api/sessions/:id
func (h *ChatHandler) UpdateSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	var req updateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	session, err := h.chat.UpdateSessionTitle(dbc, who, sessionID, req.Title)
	if err != nil {
		response.RespondServiceError(c, "update_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// DELETE /api/sessions/:id
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	dbc, who := requestScope(c)
	if err := h.chat.DeleteSession(dbc, who, sessionID); err != nil {
		response.RespondServiceError(c, "delete_session_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/sessions/:id/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	dbc, who := requestScope(c)
	msgs, err := h.chat.ListMessages(dbc, who, sessionID)
	if err != nil {
		response.RespondServiceError(c, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	SessionID   *uuid.UUID         `json:"sessionId"`
	Content     string             `json:"content"`
	Model       string             `json:"model"`
	Attachments []types.Attachment `json:"attachments"`
}

func (h *ChatHandler) send(c *gin.Context, sessionID *uuid.UUID) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if sessionID == nil {
		sessionID = req.SessionID
	}
	dbc, who := requestScope(c)
	res, err := h.chat.SendMessage(dbc, who, services.SendInput{
		SessionID:   sessionID,
		Content:     req.Content,
		Model:       req.Model,
		Attachments: req.Attachments,
	})
	if err != nil {
		response.RespondServiceError(c, "send_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// POST /api/sessions/:id/messages
func (h *ChatHandler) SendToSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	h.send(c, &sessionID)
}

// POST /api/messages
func (h *ChatHandler) Send(c *gin.Context) {
	h.send(c, nil)
}

type regenerateReq struct {
	Model string `json:"model"`
}

// POST /api/sessions/:id/regenerate
func (h *ChatHandler) Regenerate(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id", "invalid_session_id")
	if !ok {
		return
	}
	var req regenerateReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	dbc, who := requestScope(c)
	res, err := h.chat.Regenerate(dbc, who, sessionID, req.Model)
	if err != nil {
		response.RespondServiceError(c, "regenerate_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

type editMessageReq struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// POST /api/messages/:id/edit
func (h *ChatHandler) EditFrom(c *gin.Context) {
	messageID, ok := uuidParam(c, "id", "invalid_message_id")
	if !ok {
		return
	}
	var req editMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	res, err := h.chat.EditFrom(dbc, who, messageID, req.Content, req.Model)
	if err != nil {
		response.RespondServiceError(c, "edit_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

type updateMessageReq struct {
	Content string `json:"content"`
}

// PATCH /api/messages/:id
func (h *ChatHandler) UpdateMessage(c *gin.Context) {
	messageID, ok := uuidParam(c, "id", "invalid_message_id")
	if !ok {
		return
	}
	var req updateMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	msg, err := h.chat.UpdateMessage(dbc, who, messageID, req.Content)
	if err != nil {
		response.RespondServiceError(c, "update_message_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}

type migrateReq struct {
	AnonymousToken string `json:"anonymousToken" binding:"required"`
}

var (
	errMigrateNeedsUser = errors.New("migration requires a signed-in user")
	errNotAuthenticated = errors.New("not authenticated")
)

// POST /api/sessions/migrate
// The anonymous token must verify; a bare id from the client is not enough.
func (h *ChatHandler) Migrate(c *gin.Context) {
	var req migrateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	if !who.Authenticated() {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMigrateNeedsUser)
		return
	}
	anonID, err := h.auth.VerifyAnonymous(req.AnonymousToken)
	if err != nil {
		response.RespondServiceError(c, "migrate_failed", err)
		return
	}
	n, err := h.chat.MigrateOwnership(dbc, anonID, who.UserID)
	if err != nil {
		response.RespondServiceError(c, "migrate_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"migrated": n})
}
