package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carbonmarket/internal/usercontext"
)

const (
	// HeaderUserID is set by the upstream auth gateway after it verifies the caller.
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// UserRequired rejects requests that arrive without an authenticated user.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(usercontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
