// Package mw contains HTTP middleware for the matchgenius-api.
package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmylchreest/matchgenius-api/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// AdminKeyHeader carries the operator API key for /admin routes.
const AdminKeyHeader = "X-Admin-Key"

// UserClaims represents the authenticated session user.
type UserClaims struct {
	UserID string // Supabase user ID (sub claim)
	Email  string
	Role   string // From app_metadata.role
}

// IsAdmin reports whether the session user carries the admin app role.
func (c *UserClaims) IsAdmin() bool {
	return c != nil && c.Role == auth.RoleAdmin
}

// TokenVerifier verifies a session token.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.SessionClaims, error)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(authHeader)
}

// cookieToken reads the named cookie from a raw Cookie header value.
func cookieToken(cookieHeader, name string) string {
	if cookieHeader == "" || name == "" {
		return ""
	}
	r := http.Request{Header: http.Header{"Cookie": {cookieHeader}}}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// sessionToken prefers the Authorization header and falls back to the session cookie.
func sessionToken(authHeader, cookieHeader, cookieName string) string {
	if authHeader != "" {
		return bearerToken(authHeader)
	}
	return cookieToken(cookieHeader, cookieName)
}

// TokenFromRequest returns the session token from the request, or "".
func TokenFromRequest(r *http.Request, cookieName string) string {
	return sessionToken(r.Header.Get("Authorization"), r.Header.Get("Cookie"), cookieName)
}

// validateSession verifies a token and converts it to UserClaims.
func validateSession(verifier TokenVerifier, token string) (*UserClaims, error) {
	if verifier == nil {
		return nil, auth.ErrNotConfigured
	}
	sc, err := verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &UserClaims{
		UserID: sc.UserID(),
		Email:  sc.Email,
		Role:   sc.AppRole(),
	}, nil
}

// Auth returns an authentication middleware for raw chi handlers.
func Auth(verifier TokenVerifier, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := validateSession(verifier, token)
			if err != nil {
				slog.Debug("session validation failed", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth returns middleware that validates auth if present but allows unauthenticated requests.
// Handlers decide what an anonymous caller gets.
func OptionalAuth(verifier TokenVerifier, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validateSession(verifier, token)
			if err != nil {
				slog.Debug("optional session validation failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

// RequireAdminKey returns middleware that requires a valid X-Admin-Key header.
func RequireAdminKey(verifier *auth.AdminKeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Verify(r.Header.Get(AdminKeyHeader)) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserClaims returns a context carrying claims.
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, UserClaimsKey, claims)
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
