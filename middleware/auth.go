package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ClientKey = "client"

// Auth validates the Bearer JWT. Browsers cannot set headers on EventSource
// or WebSocket handshakes, so a "token" query parameter is accepted too.
// An empty secret disables the check.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ClientKey, claims.Client)
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// GetClient retrieves the authenticated client name from the Gin context.
func GetClient(c *gin.Context) string {
	if v, ok := c.Get(ClientKey); ok {
		return v.(string)
	}
	return ""
}
