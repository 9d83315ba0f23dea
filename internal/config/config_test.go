package config

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

// ========================================
// Helper Functions Tests
// ========================================

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_GET_ENV", "test_value")

	if got := getEnv("TEST_GET_ENV", "default"); got != "test_value" {
		t.Errorf("getEnv() = %q, want %q", got, "test_value")
	}
	if got := getEnv("TEST_MISSING_VAR", "default_value"); got != "default_value" {
		t.Errorf("getEnv() = %q, want %q", got, "default_value")
	}

	t.Setenv("TEST_EMPTY_VAR", "")
	if got := getEnv("TEST_EMPTY_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q (empty should use default)", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   int
		want  int
	}{
		{"valid integer", "42", 0, 42},
		{"invalid integer", "not-a-number", 99, 99},
		{"negative integer", "-5", 0, -5},
		{"unset", "", 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := getEnvInt("TEST_INT", tt.def); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"false", true, false},
		{"nope", true, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getEnvBool("TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}

	t.Setenv("TEST_DURATION", "ninety")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want 1s (default)", got)
	}
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", "https://a.example, https://b.example,,")
	got := getEnvSlice("TEST_SLICE", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("getEnvSlice() = %v, want two trimmed origins", got)
	}
}

func TestGetEnvWithFallback(t *testing.T) {
	t.Setenv("TEST_PRIMARY", "")
	t.Setenv("TEST_FALLBACK", "fallback")
	if got := getEnvWithFallback("TEST_PRIMARY", "TEST_FALLBACK", "default"); got != "fallback" {
		t.Errorf("getEnvWithFallback() = %q, want %q", got, "fallback")
	}

	t.Setenv("TEST_PRIMARY", "primary")
	if got := getEnvWithFallback("TEST_PRIMARY", "TEST_FALLBACK", "default"); got != "primary" {
		t.Errorf("getEnvWithFallback() = %q, want %q", got, "primary")
	}
}

// ========================================
// Archive Key Tests
// ========================================

func TestLoadArchiveKey_Explicit(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, 32)
	key, err := loadArchiveKey(base64.StdEncoding.EncodeToString(raw), "whsec_ignored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Error("explicit key should be used verbatim")
	}
}

func TestLoadArchiveKey_InvalidExplicit(t *testing.T) {
	if _, err := loadArchiveKey(base64.StdEncoding.EncodeToString([]byte("short")), ""); err == nil {
		t.Error("expected error for a key that is not 32 bytes")
	}
	if _, err := loadArchiveKey("%%%not-base64", ""); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestLoadArchiveKey_Derived(t *testing.T) {
	a, err := loadArchiveKey("", "whsec_one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(a))
	}

	again, _ := loadArchiveKey("", "whsec_one")
	if !bytes.Equal(a, again) {
		t.Error("derivation should be deterministic")
	}

	other, _ := loadArchiveKey("", "whsec_two")
	if bytes.Equal(a, other) {
		t.Error("different secrets should derive different keys")
	}
}

func TestLoadArchiveKey_None(t *testing.T) {
	key, err := loadArchiveKey("", "")
	if err != nil || key != nil {
		t.Errorf("loadArchiveKey() = %v, %v; want nil, nil", key, err)
	}
}

// ========================================
// Load / Validate Tests
// ========================================

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEPLOYMENT_MODE", "")
	t.Setenv("APP_ORIGIN", "https://app.example.com/")
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.AppOrigin != "https://app.example.com" {
		t.Errorf("AppOrigin = %q, trailing slash should be trimmed", cfg.AppOrigin)
	}
	if cfg.SessionCookieName != "sb-access-token" {
		t.Errorf("SessionCookieName = %q", cfg.SessionCookieName)
	}
	if cfg.StorageEnabled {
		t.Error("storage should be disabled without a bucket")
	}
	if cfg.ResyncSchedule != "@every 6h" {
		t.Errorf("ResyncSchedule = %q", cfg.ResyncSchedule)
	}
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{DeploymentMode: "production"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error in production without secrets")
	}
	for _, key := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "SUPABASE_JWT_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should mention %s", err, key)
		}
	}

	cfg.StripeSecretKey = "sk_test"
	cfg.StripeWebhookSecret = "whsec_test"
	cfg.SupabaseJWTSecret = "jwt"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_WebhookSecretRequiresAPIKey(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		t.Run(mode, func(t *testing.T) {
			cfg := &Config{
				DeploymentMode:      mode,
				StripeWebhookSecret: "whsec_test",
				SupabaseJWTSecret:   "jwt",
			}
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), "STRIPE_SECRET_KEY") {
				t.Errorf("Validate() error = %v, want one naming STRIPE_SECRET_KEY", err)
			}
		})
	}

	cfg := &Config{StripeWebhookSecret: "whsec_test", StripeSecretKey: "sk_test"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error with both keys set: %v", err)
	}
}

func TestSessionIssuer(t *testing.T) {
	cfg := &Config{}
	if cfg.SessionIssuer() != "" {
		t.Error("issuer should be empty without SUPABASE_URL")
	}
	cfg.SupabaseURL = "https://abc.supabase.co"
	if got := cfg.SessionIssuer(); got != "https://abc.supabase.co/auth/v1" {
		t.Errorf("SessionIssuer() = %q", got)
	}
}
