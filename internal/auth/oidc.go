// This file implements the OAuth login front (spec §1 interface boundary
// — the hub never calls the identity provider itself; it trusts the
// profile this front hands it). Grounded on the teacher's OIDC
// discovery/exchange flow, slimmed to the fields the allowlist and user
// store need: subject, org, team. Roles/groups claims are dropped since
// the hub has no permission model.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/relaybridge/hub/internal/logger"
)

type OIDCConfig struct {
	Enabled      bool
	ProviderURL  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	OrgClaim     string
	TeamClaim    string
}

type OIDCAuthenticator struct {
	config       *OIDCConfig
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

func NewOIDCAuthenticator(ctx context.Context, config *OIDCConfig) (*OIDCAuthenticator, error) {
	if config == nil || !config.Enabled {
		return nil, fmt.Errorf("oidc configuration is not enabled")
	}
	if config.ProviderURL == "" || config.ClientID == "" || config.ClientSecret == "" || config.RedirectURI == "" {
		return nil, fmt.Errorf("oidc provider url, client id, client secret and redirect uri are required")
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if config.OrgClaim == "" {
		config.OrgClaim = "org"
	}
	if config.TeamClaim == "" {
		config.TeamClaim = "team"
	}

	provider, err := oidc.NewProvider(ctx, config.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURI,
		Endpoint:     provider.Endpoint(),
		Scopes:       config.Scopes,
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	logger.Security().Info().Str("provider_url", config.ProviderURL).Msg("oidc provider discovered")

	return &OIDCAuthenticator{
		config:       config,
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
	}, nil
}

// IdentityProfile is the subset of an OIDC identity the allowlist and user
// store consume.
type IdentityProfile struct {
	Subject string
	Email   string
	Org     string
	Team    string
}

func (a *OIDCAuthenticator) GetAuthorizationURL(state string) string {
	return a.oauth2Config.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code and verifies the ID
// token, returning the caller's identity profile.
func (a *OIDCAuthenticator) HandleCallback(ctx context.Context, code string) (*IdentityProfile, error) {
	oauth2Token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token field in oauth2 token")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token claims: %w", err)
	}

	profile := &IdentityProfile{
		Subject: idToken.Subject,
		Email:   extractStringClaim(claims, "email"),
		Org:     extractStringClaim(claims, a.config.OrgClaim),
		Team:    extractStringClaim(claims, a.config.TeamClaim),
	}

	logger.Security().Info().Str("subject", profile.Subject).Msg("oidc callback authenticated")
	return profile, nil
}

func extractStringClaim(claims map[string]interface{}, name string) string {
	if v, ok := claims[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// LoginHandler redirects the browser to the provider's authorization
// endpoint, stashing a CSRF state value in a short-lived cookie.
func (a *OIDCAuthenticator) LoginHandler(c *gin.Context) {
	state, err := generateRandomState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	c.SetCookie("oidc_state", state, 600, "/", "", false, true)
	c.Redirect(http.StatusFound, a.GetAuthorizationURL(state))
}

func generateRandomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
