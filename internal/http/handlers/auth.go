package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type AuthHandler struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthHandler(log *logger.Logger, auth services.AuthService) *AuthHandler {
	return &AuthHandler{log: log.With("handler", "AuthHandler"), auth: auth}
}

// POST /api/auth/anonymous
func (h *AuthHandler) IssueAnonymous(c *gin.Context) {
	tok, err := h.auth.IssueAnonymous()
	if err != nil {
		response.RespondServiceError(c, "anonymous_token_failed", err)
		return
	}
	response.RespondCreated(c, tok)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	who := ctxutil.GetIdentity(c.Request.Context())
	out := gin.H{
		"authenticated": who.Authenticated(),
		"anonymous":     who.Anonymous(),
	}
	if who.Authenticated() {
		out["userId"] = who.UserID
	}
	if who.AnonymousID != "" {
		out["anonymousId"] = who.AnonymousID
	}
	response.RespondOK(c, out)
}
