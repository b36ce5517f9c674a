package middleware

import (
	"crypto/subtle"
	"net/http"

	"wayfinder/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalKeyMiddleware guards service-to-service routes with a shared key.
// An empty key disables the routes entirely.
func InternalKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Internal API disabled"})
			return
		}
		got := c.GetHeader(utils.InternalKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			zap.L().Warn("internal key mismatch", zap.String("ip", c.ClientIP()), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid internal key"})
			return
		}
		c.Next()
	}
}
