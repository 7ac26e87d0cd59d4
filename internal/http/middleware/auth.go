package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

const HeaderAnonymousToken = "X-Anonymous-Token"

var (
	errNoIdentity = errors.New("missing or invalid token")
	errNoUser     = errors.New("sign in required")
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService}
}

// Identify resolves whatever credentials the request carries into a
// ctxutil.Identity. Requests without credentials pass through with an empty
// identity; invalid credentials are rejected.
func (am *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		access, anon := extractTokens(c)
		who, err := am.authService.Identify(access, anon)
		if err != nil {
			am.log.Debug("Rejected credentials", "path", c.FullPath(), "error", err)
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errNoIdentity)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithIdentity(c.Request.Context(), who))
		c.Next()
	}
}

// RequireIdentity accepts a signed-in user or a verified anonymous token.
func (am *AuthMiddleware) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ctxutil.GetIdentity(c.Request.Context()).Empty() {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errNoIdentity)
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ctxutil.GetIdentity(c.Request.Context()).Authenticated() {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errNoUser)
			return
		}
		c.Next()
	}
}

// extractTokens also reads query parameters because EventSource cannot set headers.
func extractTokens(c *gin.Context) (access string, anon string) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		access = strings.TrimSpace(authHeader[7:])
	}
	if access == "" {
		access = c.Query("token")
	}
	anon = strings.TrimSpace(c.GetHeader(HeaderAnonymousToken))
	if anon == "" {
		anon = c.Query("anon_token")
	}
	return access, anon
}
