package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginAllowed reports whether origin may open a stream. An empty allow
// list or a missing Origin header (non-browser clients) is accepted.
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// Origin rejects browser requests whose Origin is not in allowed.
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !OriginAllowed(allowed, c.GetHeader("Origin")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}
