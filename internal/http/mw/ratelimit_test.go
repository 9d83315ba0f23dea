package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// ========================================
// RateLimitByUser Tests
// ========================================

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.UserRequestsPerMinute <= 0 || cfg.IPRequestsPerMinute <= 0 {
		t.Errorf("DefaultRateLimitConfig() = %+v, want positive limits", cfg)
	}
}

func TestRateLimitByUser_AnonymousUsesIP(t *testing.T) {
	handler := RateLimitByUser(RateLimitConfig{UserRequestsPerMinute: 100, IPRequestsPerMinute: 2})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/checkout", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimitByUser_PerUser(t *testing.T) {
	handler := RateLimitByUser(RateLimitConfig{UserRequestsPerMinute: 1, IPRequestsPerMinute: 100})(okHandler())

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/checkout", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req = req.WithContext(WithUserClaims(req.Context(), &UserClaims{UserID: userID}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := do("user-a"); got != http.StatusOK {
		t.Errorf("first request = %d, want 200", got)
	}
	if got := do("user-a"); got != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", got)
	}
	// a different user on the same IP has its own budget
	if got := do("user-b"); got != http.StatusOK {
		t.Errorf("other user = %d, want 200", got)
	}
}

func TestRateLimitByUser_Unlimited(t *testing.T) {
	handler := RateLimitByUser(RateLimitConfig{UserRequestsPerMinute: 0, IPRequestsPerMinute: 1})(okHandler())
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUserClaims(req.Context(), &UserClaims{UserID: "user-a"}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, rr.Code)
		}
	}
}

func TestRateLimitByIP(t *testing.T) {
	handler := RateLimitByIP(1)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", nil)
	req.RemoteAddr = "203.0.113.9:443"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("first = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", rr.Code)
	}
}
