// Package acceptor implements the Connection Acceptor (spec §4.1): it
// classifies an inbound WebSocket upgrade as either a client or a browser
// connection and hands the upgraded socket to the owning user's Hub. The
// handshake and read/write pumps themselves live in internal/hub, which
// is the only package allowed to write to a socket directly (§5).
//
// Grounded on the teacher's AgentWebSocketHandler
// (internal/handlers/agent_websocket.go) for the upgrader configuration;
// the classification logic is new, built to the spec's two-connection-kind
// contract instead of the teacher's single-role agent socket.
package acceptor

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/relaybridge/hub/internal/auth"
	"github.com/relaybridge/hub/internal/db"
	"github.com/relaybridge/hub/internal/hub"
	"github.com/relaybridge/hub/internal/logger"
)

// Acceptor wires together the pieces needed to classify and admit a
// connection: the token store for client credentials, the JWT manager for
// browser session cookies, and the Hub manager that owns per-user actors.
type Acceptor struct {
	manager    *hub.Manager
	tokenDB    *db.TokenDB
	hasher     *auth.TokenHasher
	jwtManager *auth.JWTManager
	upgrader   websocket.Upgrader
}

func New(manager *hub.Manager, tokenDB *db.TokenDB, jwtManager *auth.JWTManager) *Acceptor {
	return &Acceptor{
		manager:    manager,
		tokenDB:    tokenDB,
		hasher:     auth.NewTokenHasher(),
		jwtManager: jwtManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnect is the gin handler for the single WebSocket upgrade
// endpoint shared by clients and browsers (spec §6). Classification rules
// are checked in order, first match wins (§4.1).
func (a *Acceptor) HandleConnect(c *gin.Context) {
	ctx := c.Request.Context()

	if token := c.Query("token"); token != "" {
		a.acceptClient(c, token)
		return
	}

	if cookie, err := c.Cookie(auth.SessionCookieName); err == nil && cookie != "" {
		claims, err := a.jwtManager.ValidateToken(ctx, cookie)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		a.acceptBrowser(c, claims.UserID)
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
}

// acceptClient implements classification rule 1 (§4.1): token lookup,
// revocation/secret check, last_used bookkeeping, then handoff to the
// owning user's hub for the registration handshake.
func (a *Acceptor) acceptClient(c *gin.Context, rawToken string) {
	ctx := c.Request.Context()

	parsed, err := auth.ParseWireToken(rawToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed token"})
		return
	}

	record, err := a.tokenDB.GetTokenByID(ctx, parsed.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown token"})
		return
	}
	if record.RevokedAt != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
		return
	}
	if !auth.VerifySecret(a.hasher, parsed.Secret, record.SecretHash) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	h, err := a.manager.GetOrCreate(record.OwnerUserID)
	if err != nil {
		logger.Acceptor().Error().Err(err).Str("owner_user_id", record.OwnerUserID).Msg("failed to start hub for client connection")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "hub unavailable"})
		return
	}

	if err := a.tokenDB.TouchLastUsed(ctx, record.ID); err != nil {
		// Transient per §7; does not block an already-validated connection.
		logger.Acceptor().Warn().Err(err).Str("token_id", record.ID).Msg("failed to record token last_used")
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.ServeClientSocket(conn)
}

// acceptBrowser implements classification rule 2 (§4.1): an already
// session-validated browser is handed to its owning hub.
func (a *Acceptor) acceptBrowser(c *gin.Context, userID string) {
	h, err := a.manager.GetOrCreate(userID)
	if err != nil {
		logger.Acceptor().Error().Err(err).Str("user_id", userID).Msg("failed to start hub for browser connection")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "hub unavailable"})
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.ServeBrowserSocket(conn)
}
