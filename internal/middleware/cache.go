package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks responses as private per-attempt state that neither the browser
// nor an intermediary may cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
