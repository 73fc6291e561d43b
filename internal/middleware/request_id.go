// This file implements request ID generation and correlation: a UUIDv4
// per HTTP request, echoed in the X-Request-ID response header and stashed
// in the gin context for log correlation (spec §8 ambient tooling — each
// log line from a connect/proxy request should be traceable back to it).
// Idempotent: a client-supplied X-Request-ID is preserved rather than
// overwritten, so this hub can sit behind an upstream that already
// assigned one.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID generates or extracts a correlation ID for each request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
