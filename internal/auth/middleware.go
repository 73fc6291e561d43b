// This file implements the gin middleware that authenticates browser
// requests by session cookie, classification rule 2 of the Connection
// Acceptor (spec §4.1). Client WebSocket upgrades carrying a token query
// parameter are classified by internal/acceptor, not by this middleware.
// WebSocket upgrade requests get status-only aborts on failure
// (no JSON body), since the upgrader expects a clean HTTP response.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const SessionCookieName = "hub_session"

// BrowserSession authenticates a browser connection by session cookie and
// sets userID in the gin context. Classification rule 2 of §4.1.
func BrowserSession(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		isWebSocket := isWebSocketUpgrade(c)

		cookie, err := c.Cookie(SessionCookieName)
		if err != nil || cookie == "" {
			abort(c, isWebSocket, http.StatusUnauthorized, "missing session cookie")
			return
		}

		claims, err := jwtManager.ValidateToken(c.Request.Context(), cookie)
		if err != nil {
			abort(c, isWebSocket, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("sessionID", claims.ID)
		c.Next()
	}
}

func isWebSocketUpgrade(c *gin.Context) bool {
	upgrade := strings.ToLower(c.GetHeader("Upgrade"))
	connection := strings.ToLower(c.GetHeader("Connection"))
	return upgrade == "websocket" && strings.Contains(connection, "upgrade")
}

func abort(c *gin.Context, isWebSocket bool, status int, message string) {
	if isWebSocket {
		c.AbortWithStatus(status)
		return
	}
	c.JSON(status, gin.H{"error": message})
	c.Abort()
}

// GetUserID retrieves the authenticated user id from the gin context.
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
