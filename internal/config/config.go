// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	AppOrigin   string // Web app origin used for checkout/portal return URLs
	CORSOrigins []string

	// Deployment mode ("development" or "production")
	DeploymentMode string

	// IdleTimeout stops the server after this long without requests (scale-to-zero); 0 disables
	IdleTimeout time.Duration

	// Database
	DatabaseURL string

	// Supabase session verification
	SupabaseURL       string // Expected token issuer is SupabaseURL + "/auth/v1"
	SupabaseJWTSecret string // HS256 signing secret for Supabase access tokens
	SessionCookieName string // Cookie carrying the access token for browser requests

	// Stripe
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeBreakerTimeout time.Duration // How long the gateway breaker stays open

	// Identity provider webhooks (Standard Webhooks / Svix signing secret, "whsec_...")
	AuthWebhookSecret string

	// Admin API key (bcrypt hash of the key, never the key itself)
	AdminAPIKeyHash string

	// Object Storage (Tigris/S3-compatible) for the raw event archive
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string

	// Event archive
	ArchiveEncryptionKey []byte // 32-byte AES-256 key for archived payloads
	ArchiveQueueSize     int
	ArchiveConcurrency   int
	ArchiveRetention     time.Duration // Archived payloads older than this are deleted; 0 keeps them

	// Scheduled jobs
	JobsEnabled     bool
	ResyncSchedule  string        // cron spec for the stale subscription resync
	ResyncGrace     time.Duration // How far past period end an active row must be before resync
	CatalogSchedule string        // cron spec for the product catalog mirror
	PruneSchedule   string        // cron spec for deleting archived payloads past retention

	// Subscription read caching
	SubscriptionCacheTTL    time.Duration // Server-side in-memory cache TTL
	SubscriptionCacheMaxAge time.Duration // Cache-Control max-age for authenticated reads
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		AppOrigin:      strings.TrimSuffix(getEnv("APP_ORIGIN", "http://localhost:3000"), "/"),
		CORSOrigins:    getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		DeploymentMode: getEnv("DEPLOYMENT_MODE", "development"),
		IdleTimeout:    getEnvDuration("IDLE_TIMEOUT", 0),
		DatabaseURL:    getEnv("DATABASE_URL", "file:matchgenius.db?_journal=WAL&_timeout=5000"),

		SupabaseURL:       strings.TrimSuffix(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "sb-access-token"),

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBreakerTimeout: getEnvDuration("STRIPE_BREAKER_TIMEOUT", 30*time.Second),

		AuthWebhookSecret: getEnv("AUTH_WEBHOOK_SECRET", ""),
		AdminAPIKeyHash:   getEnv("ADMIN_API_KEY_HASH", ""),

		// Fly's standard env vars; BUCKET_NAME is set by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		ArchiveQueueSize:   getEnvInt("ARCHIVE_QUEUE_SIZE", 256),
		ArchiveConcurrency: getEnvInt("ARCHIVE_CONCURRENCY", 2),
		ArchiveRetention:   getEnvDuration("ARCHIVE_RETENTION", 90*24*time.Hour),

		JobsEnabled:     getEnvBool("JOBS_ENABLED", true),
		ResyncSchedule:  getEnv("RESYNC_SCHEDULE", "@every 6h"),
		ResyncGrace:     getEnvDuration("RESYNC_GRACE", 24*time.Hour),
		CatalogSchedule: getEnv("CATALOG_SCHEDULE", "@every 1h"),
		PruneSchedule:   getEnv("ARCHIVE_PRUNE_SCHEDULE", "@daily"),

		SubscriptionCacheTTL:    getEnvDuration("SUBSCRIPTION_CACHE_TTL", 30*time.Second),
		SubscriptionCacheMaxAge: getEnvDuration("SUBSCRIPTION_CACHE_MAX_AGE", 60*time.Second),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	archiveKey, err := loadArchiveKey(getEnv("ARCHIVE_ENCRYPTION_KEY", ""), cfg.StripeWebhookSecret)
	if err != nil {
		return nil, err
	}
	cfg.ArchiveEncryptionKey = archiveKey

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that are required outside development.
// A webhook secret without an API key is rejected in every mode.
func (c *Config) Validate() error {
	if c.StripeWebhookSecret != "" && c.StripeSecretKey == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is set but STRIPE_SECRET_KEY is not")
	}
	if !c.IsProduction() {
		return nil
	}
	var missing []string
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.SupabaseJWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration for production: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.DeploymentMode == "production"
}

// StripeEnabled returns true if Stripe API access is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// SessionIssuer returns the expected "iss" claim of Supabase access tokens.
// Empty means the issuer is not checked.
func (c *Config) SessionIssuer() string {
	if c.SupabaseURL == "" {
		return ""
	}
	return c.SupabaseURL + "/auth/v1"
}

// loadArchiveKey decodes an explicit base64 key or derives one from the webhook secret.
// Returns nil when neither is available; archiving then stores nothing.
func loadArchiveKey(explicit, webhookSecret string) ([]byte, error) {
	if explicit != "" {
		decoded, err := base64.StdEncoding.DecodeString(explicit)
		if err != nil || len(decoded) != 32 {
			return nil, errors.New("ARCHIVE_ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		return decoded, nil
	}
	if webhookSecret == "" {
		return nil, nil
	}
	return deriveArchiveKey(webhookSecret), nil
}

// deriveArchiveKey creates a 32-byte AES-256 key from a high-entropy secret using HKDF-SHA256.
func deriveArchiveKey(secret string) []byte {
	salt := []byte("matchgenius-api-archive-key-v1")
	info := []byte("aes-256-gcm-event-archive")

	reader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
