// Package httpapi assembles the stateless HTTP front named in spec §1:
// OAuth login, the WebSocket upgrade endpoint, the HTTP proxy surface, and
// an RPC-style dashboard read. Everything here is thin plumbing around
// internal/auth, internal/acceptor, and internal/hub — it holds no
// Registry state of its own.
//
// Grounded on the teacher's router assembly style (gin.New() plus an
// explicit middleware chain, no framework-level route groups hidden behind
// helper packages).
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/relaybridge/hub/internal/acceptor"
	"github.com/relaybridge/hub/internal/auth"
	"github.com/relaybridge/hub/internal/cache"
	appErrors "github.com/relaybridge/hub/internal/errors"
	"github.com/relaybridge/hub/internal/hub"
	"github.com/relaybridge/hub/internal/middleware"
)

// Dependencies bundles everything the router needs to wire its handlers.
type Dependencies struct {
	Manager     *hub.Manager
	Acceptor    *acceptor.Acceptor
	AuthHandler *auth.AuthHandler
	JWTManager  *auth.JWTManager
	RedisClient *redis.Client
	ProxyPrefix string
}

// NewRouter builds the full gin engine: ambient middleware, the auth
// surface, the WebSocket upgrade endpoint, and the proxy/dashboard API.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(appErrors.Recovery())
	router.Use(gin.Logger())
	router.Use(appErrors.ErrorHandler())
	router.Use(middleware.SecurityHeaders())

	rateLimiter, err := NewRateLimiter(deps.RedisClient)
	if err != nil {
		return nil, err
	}

	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	deps.AuthHandler.RegisterRoutes(authGroup)

	router.GET("/ws/connect", rateLimiter.ConnectMiddleware(), deps.Acceptor.HandleConnect)

	dashboard := NewDashboardHandler(deps.Manager)
	proxy := NewProxyHandler(deps.Manager, deps.ProxyPrefix)

	api := router.Group("/")
	api.Use(auth.BrowserSession(deps.JWTManager))
	api.GET("/clients", cache.NoStore(), dashboard.Clients)
	api.GET("/dashboard", cache.NoStore(), dashboard.Dashboard)
	api.Any("/clients/:client_id/proxy/*tail", rateLimiter.ProxyMiddleware(), proxy.Handle)

	return router, nil
}
