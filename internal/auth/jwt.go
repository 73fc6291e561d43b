// This file implements the signed session cookie issued by the OAuth login
// front (ambient, spec §1 interface boundary). The cookie carries the
// owning user id and a jti that is cross-checked against the server-side
// SessionStore so a logout can invalidate it immediately.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relaybridge/hub/internal/cache"
)

// Claims is the session cookie's payload. Kept minimal per the token
// format stability note (spec §9): only what the hub's login front needs
// to route a browser connection to the right owning user.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// JWTManager issues and validates session cookies, and tracks their jti in
// the server-side SessionStore so logout can invalidate them.
type JWTManager struct {
	config       *JWTConfig
	sessionStore *SessionStore
}

func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "relaybridge-hub"
	}
	return &JWTManager{config: config}
}

func NewJWTManagerWithSessions(config *JWTConfig, cacheClient *cache.Cache) *JWTManager {
	m := NewJWTManager(config)
	m.sessionStore = NewSessionStore(cacheClient)
	return m
}

func (m *JWTManager) GetSessionStore() *SessionStore { return m.sessionStore }

// IssuedToken is the result of issuing a session cookie: the signed value
// plus the metadata a durable audit record needs (spec §6).
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// GenerateToken issues a new session cookie value for userID.
func (m *JWTManager) GenerateToken(ctx context.Context, userID string) (string, error) {
	issued, err := m.IssueToken(ctx, userID)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// IssueToken is GenerateToken's fuller sibling: it also returns the jti and
// expiry so a caller can record a durable login-session audit row.
func (m *JWTManager) IssueToken(ctx context.Context, userID string) (*IssuedToken, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.TokenDuration)

	sessionID, err := GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    m.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if m.sessionStore != nil && m.sessionStore.IsEnabled() {
		session := &SessionData{
			SessionID: sessionID,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}
		if err := m.sessionStore.CreateSession(ctx, session, m.config.TokenDuration); err != nil {
			return nil, fmt.Errorf("failed to store session: %w", err)
		}
	}

	return &IssuedToken{Token: tokenString, JTI: sessionID, ExpiresAt: expiresAt}, nil
}

// ValidateToken verifies the signature and, if a SessionStore is wired,
// confirms the jti has not been revoked.
func (m *JWTManager) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if m.sessionStore != nil && m.sessionStore.IsEnabled() {
		valid, err := m.sessionStore.ValidateSession(ctx, claims.ID)
		if err != nil || !valid {
			return nil, errors.New("session revoked or expired")
		}
	}

	return claims, nil
}

// InvalidateSession revokes a session cookie immediately (logout).
func (m *JWTManager) InvalidateSession(ctx context.Context, sessionID string) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.DeleteSession(ctx, sessionID)
}
