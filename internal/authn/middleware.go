package authn

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quizengine/session-engine/pkg/response"
)

const (
	// ContextUserIDKey is the Gin context key the middleware stores the
	// verified user id under.
	ContextUserIDKey = "auth_user_id"

	authorizationHeaderKey = "Authorization"
	bearerPrefix           = "Bearer"
)

// RequireAuth verifies the bearer token on every request, aborting with
// 401 if it is missing, malformed, expired, or invalid.
func RequireAuth(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeaderKey)
		if header == "" {
			response.WithError(c, http.StatusUnauthorized, "Unauthorized", "Authorization header is required")
			c.Abort()
			return
		}

		fields := strings.Fields(header)
		if len(fields) < 2 || fields[0] != bearerPrefix {
			response.WithError(c, http.StatusUnauthorized, "Unauthorized", "Invalid authorization format. Format should be 'Bearer {token}'")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(fields[1])
		if err != nil {
			msg := "Invalid token"
			if err == ErrExpiredToken {
				msg = "Token has expired"
			}
			response.WithError(c, http.StatusUnauthorized, "Unauthorized", msg)
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID retrieves the verified user id set by RequireAuth.
func UserID(c *gin.Context) string {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
