package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// UserRequestsPerMinute limits authenticated callers by user ID (0 = unlimited).
	UserRequestsPerMinute int
	// IPRequestsPerMinute is the fallback limit by IP for unauthenticated requests.
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the limits applied to billing routes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UserRequestsPerMinute: 30,
		IPRequestsPerMinute:   60,
	}
}

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER authentication middleware.
// Falls back to IP-based limiting if user is not authenticated.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var userLimiter *httprate.RateLimiter
	if cfg.UserRequestsPerMinute > 0 {
		userLimiter = httprate.NewRateLimiter(
			cfg.UserRequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return "user:" + GetUserClaims(r.Context()).UserID, nil
			}),
		)
	}

	ipLimiter := httprate.NewRateLimiter(
		cfg.IPRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil || claims.UserID == "" {
				ipLimiter.Handler(next).ServeHTTP(w, r)
				return
			}
			if userLimiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			userLimiter.Handler(next).ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Used on the webhook endpoints, which carry no session.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
