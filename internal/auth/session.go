// Package auth verifies Supabase session tokens and caches subscription reads.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
	ErrNotConfigured = errors.New("session verification not configured")
)

// RoleAdmin is the app_metadata role allowed to act on other users' billing.
const RoleAdmin = "admin"

// SessionClaims are the Supabase access token claims this service reads.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email,omitempty"`
	Role        string         `json:"role,omitempty"` // Postgres role, e.g. "authenticated"
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// AppRole returns app_metadata.role, which only the service role can set.
func (c *SessionClaims) AppRole() string {
	if c.AppMetadata == nil {
		return ""
	}
	role, _ := c.AppMetadata["role"].(string)
	return role
}

// SessionVerifier verifies HS256 Supabase access tokens.
type SessionVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewSessionVerifier creates a verifier. An empty issuer skips the issuer check.
func NewSessionVerifier(secret, issuer string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// VerifyToken verifies the signature and expiry and returns the claims.
func (v *SessionVerifier) VerifyToken(tokenString string) (*SessionClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}
