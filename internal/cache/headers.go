package cache

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NoStore marks GET responses uncacheable by any proxy or browser. The
// dashboard read (spec §2) answers with a live per-user Registry snapshot
// and there is no invalidation hook tying a cached copy to the next
// connect/disconnect, so it is never safe to cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		}
		c.Next()
	}
}
