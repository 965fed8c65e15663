package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/penzjakof/anchat-relay/internal/apierrors"
	"github.com/penzjakof/anchat-relay/internal/auth"
	"github.com/penzjakof/anchat-relay/internal/models"
)

// CallerContextKey is the gin context key the authenticated caller is
// stored under.
const CallerContextKey = "caller"

// Auth validates the dashboard token from the auth_token cookie, the
// Authorization header, or (for websocket upgrades, where browsers
// cannot set headers) the token query parameter.
func Auth(manager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			apierrors.Error(c, apierrors.CodeUnauthorized)
			c.Abort()
			return
		}

		caller, err := manager.Validate(token)
		if err != nil {
			code := apierrors.CodeInvalidToken
			if err == auth.ErrTokenExpired {
				code = apierrors.CodeTokenExpired
			}
			apierrors.Error(c, code)
			c.Abort()
			return
		}

		c.Set(CallerContextKey, caller)
		c.Next()
	}
}

// Caller returns the authenticated caller stored by Auth.
func Caller(c *gin.Context) (models.CallerContext, bool) {
	v, ok := c.Get(CallerContextKey)
	if !ok {
		return models.CallerContext{}, false
	}
	caller, ok := v.(models.CallerContext)
	return caller, ok
}

func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}
