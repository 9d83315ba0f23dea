package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/metrics"
	"github.com/jmylchreest/matchgenius-api/internal/models"
)

const (
	// DefaultSubscriptionCacheTTL is the default TTL for cached subscriptions.
	DefaultSubscriptionCacheTTL = 30 * time.Second
)

// SubscriptionLoader reads a user's subscription record from storage. nil means no record.
type SubscriptionLoader func(ctx context.Context, userID string) (*models.Subscription, error)

// CachedSubscription wraps a subscription with expiration time.
type CachedSubscription struct {
	Subscription *models.Subscription
	ExpiresAt    time.Time
}

// IsExpired returns true if the cached entry has expired.
func (c *CachedSubscription) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// SubscriptionCache is a short-lived in-memory cache in front of subscription reads.
// The reconciler invalidates a user's entry after every upsert.
// It's safe for concurrent access.
type SubscriptionCache struct {
	mu       sync.RWMutex
	cache    map[string]*CachedSubscription
	ttl      time.Duration
	load     SubscriptionLoader
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSubscriptionCache creates a new subscription cache.
func NewSubscriptionCache(load SubscriptionLoader, ttl time.Duration, logger *slog.Logger) *SubscriptionCache {
	if ttl <= 0 {
		ttl = DefaultSubscriptionCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &SubscriptionCache{
		cache:  make(map[string]*CachedSubscription),
		ttl:    ttl,
		load:   load,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// GetSubscription retrieves a user's subscription, using cache if available.
// Returns nil if the user has no subscription (also cached as a "no subscription" entry).
func (c *SubscriptionCache) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	c.mu.RLock()
	cached, ok := c.cache[userID]
	c.mu.RUnlock()

	if ok && !cached.IsExpired() {
		metrics.SubscriptionCacheLookups.WithLabelValues("hit").Inc()
		return cached.Subscription, nil
	}

	sub, err := c.load(ctx, userID)
	if err != nil {
		c.logger.Warn("failed to load subscription",
			"user_id", userID,
			"error", err,
		)
		// stale is better than an error
		if ok {
			metrics.SubscriptionCacheLookups.WithLabelValues("stale").Inc()
			return cached.Subscription, nil
		}
		return nil, err
	}
	metrics.SubscriptionCacheLookups.WithLabelValues("miss").Inc()

	c.mu.Lock()
	c.cache[userID] = &CachedSubscription{
		Subscription: sub,
		ExpiresAt:    time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	return sub, nil
}

// Invalidate removes a user's subscription from the cache.
func (c *SubscriptionCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()

	c.logger.Debug("invalidated subscription cache", "user_id", userID)
}

// InvalidateAll clears the entire cache.
func (c *SubscriptionCache) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[string]*CachedSubscription)
	c.mu.Unlock()
}

// Stop gracefully shuts down the cache cleanup goroutine.
func (c *SubscriptionCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// cleanupLoop periodically removes expired entries from the cache.
func (c *SubscriptionCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *SubscriptionCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for userID, cached := range c.cache {
		if now.After(cached.ExpiresAt) {
			delete(c.cache, userID)
		}
	}
}

// Size returns the current number of cached entries.
func (c *SubscriptionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
