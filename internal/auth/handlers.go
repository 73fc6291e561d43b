// This file implements the HTTP handlers for the OAuth login front: the
// authorization-redirect endpoint, the callback that exchanges the code,
// checks the identity whitelist, upserts the user row, and issues a
// session cookie, and logout. This is the only place the hub's HTTP
// surface talks to an identity provider (spec §1).
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/hub/internal/db"
	"github.com/relaybridge/hub/internal/logger"
)

// validateReturnURL guards against open-redirect via a crafted return_url
// query parameter.
func validateReturnURL(returnURL string) string {
	if returnURL == "" {
		return "/"
	}
	if !strings.HasPrefix(returnURL, "/") {
		return "/"
	}
	if strings.HasPrefix(returnURL, "//") {
		return "/"
	}
	if strings.ContainsAny(returnURL, "\\") {
		return "/"
	}
	if strings.Contains(returnURL, "://") {
		return "/"
	}
	if strings.Contains(returnURL, "%2f") || strings.Contains(returnURL, "%2F") {
		return "/"
	}
	return returnURL
}

// AuthHandler wires the OIDC front to the allowlist, user store and
// session cookie issuer.
type AuthHandler struct {
	oidc       *OIDCAuthenticator
	allowlist  *Allowlist
	userDB     *db.UserDB
	sessionDB  *db.SessionDB
	jwtManager *JWTManager
}

func NewAuthHandler(oidcAuth *OIDCAuthenticator, allowlist *Allowlist, userDB *db.UserDB, sessionDB *db.SessionDB, jwtManager *JWTManager) *AuthHandler {
	return &AuthHandler{
		oidc:       oidcAuth,
		allowlist:  allowlist,
		userDB:     userDB,
		sessionDB:  sessionDB,
		jwtManager: jwtManager,
	}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/login", h.Login)
	router.GET("/callback", h.Callback)
	router.POST("/logout", h.Logout)
}

// Login starts the OAuth authorization-code flow, stashing the
// caller-requested return URL alongside the provider's CSRF state cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	returnURL := validateReturnURL(c.Query("return_url"))
	c.SetCookie("return_url", returnURL, 600, "/", "", c.Request.TLS != nil, true)
	h.oidc.LoginHandler(c)
}

// Callback exchanges the authorization code, enforces the identity
// whitelist, upserts the user row, and issues the session cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	storedState, err := c.Cookie("oidc_state")
	if err != nil || storedState == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state cookie"})
		return
	}
	c.SetCookie("oidc_state", "", -1, "/", "", c.Request.TLS != nil, true)

	if c.Query("state") != storedState {
		logger.Security().Warn().Msg("oidc callback state mismatch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state parameter"})
		return
	}

	if errMsg := c.Query("error"); errMsg != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errMsg, "error_description": c.Query("error_description")})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	ctx := c.Request.Context()
	profile, err := h.oidc.HandleCallback(ctx, code)
	if err != nil {
		logger.Security().Error().Err(err).Msg("oidc callback exchange failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	if !h.allowlist.Allowed(Profile{UserID: profile.Subject, Org: profile.Org, Team: profile.Team}) {
		logger.Security().Warn().Str("subject", profile.Subject).Msg("identity rejected by allowlist")
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted to sign in"})
		return
	}

	user := &db.User{
		ID:       profile.Subject,
		Username: profile.Subject,
		Email:    profile.Email,
		Org:      profile.Org,
		Team:     profile.Team,
	}
	if err := h.userDB.UpsertFromIdentity(ctx, user); err != nil {
		logger.Security().Error().Err(err).Msg("failed to upsert user from identity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	issued, err := h.jwtManager.IssueToken(ctx, user.ID)
	if err != nil {
		logger.Security().Error().Err(err).Msg("failed to issue session cookie")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if h.sessionDB != nil {
		record := &db.LoginSession{
			CookieValue: issued.Token,
			UserID:      user.ID,
			JTI:         issued.JTI,
			ExpiresAt:   issued.ExpiresAt,
		}
		if err := h.sessionDB.CreateLoginSession(ctx, record); err != nil {
			logger.Security().Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login session audit row")
		}
	}
	c.SetCookie(SessionCookieName, issued.Token, 0, "/", "", c.Request.TLS != nil, true)

	returnURL := "/"
	if v, err := c.Cookie("return_url"); err == nil && v != "" {
		returnURL = validateReturnURL(v)
	}
	c.SetCookie("return_url", "", -1, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, returnURL)
}

// Logout invalidates the session cookie's server-side record. The hub's
// own connection state is untouched: browser sockets that are already
// open stay open; with the Redis session store enabled, later requests and
// upgrades carrying the old cookie fail validation.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, _ := c.Get("sessionID")
	sid, _ := sessionID.(string)
	if sid == "" {
		if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
			if claims, err := h.jwtManager.ValidateToken(c.Request.Context(), cookie); err == nil {
				sid = claims.ID
			}
		}
	}
	if sid != "" {
		if err := h.jwtManager.InvalidateSession(c.Request.Context(), sid); err != nil {
			logger.Security().Warn().Err(err).Str("session_id", sid).Msg("failed to invalidate session on logout")
		}
	}
	if h.sessionDB != nil {
		if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
			if err := h.sessionDB.DeleteLoginSession(c.Request.Context(), cookie); err != nil {
				logger.Security().Warn().Err(err).Msg("failed to delete login session audit row")
			}
		}
	}
	c.SetCookie(SessionCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
