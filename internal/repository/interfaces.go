// Package repository defines repository interfaces for data access.
// The user_id columns reference Supabase auth user IDs; users themselves live in Supabase.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

// SubscriptionRepository defines methods for subscription record access.
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	// Upsert writes the non-nil patch fields for patch.UserID in a single statement.
	// An existing stripe_customer_id is never replaced.
	Upsert(ctx context.Context, patch *models.SubscriptionPatch) (*models.Subscription, error)
	// SetStatusForSubscription sets the status of the user's row only while the row tracks
	// subscriptionID or no subscription yet; a missing row is created. Other subscription
	// fields are left alone. applied is false when the row tracks a different subscription.
	SetStatusForSubscription(ctx context.Context, userID, subscriptionID string, customerID *string, status models.SubscriptionStatus) (sub *models.Subscription, applied bool, err error)
	// EnsureCustomer creates the customer-only row if the user has none.
	EnsureCustomer(ctx context.Context, userID, customerID string) (*models.Subscription, error)
	// ListStaleEntitled returns active/trialing rows whose period ended before the cutoff.
	ListStaleEntitled(ctx context.Context, before time.Time, limit int) ([]*models.Subscription, error)
}

// WebhookEventRepository defines methods for the processor webhook delivery log.
type WebhookEventRepository interface {
	// Record inserts the event or, for a redelivery, bumps attempts and overwrites the outcome.
	Record(ctx context.Context, event *models.WebhookEvent) error
	GetByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error)
}

// CatalogRepository defines methods for the mirrored product catalog.
type CatalogRepository interface {
	// Replace swaps the whole mirror for products in one transaction.
	Replace(ctx context.Context, products []*models.Product) error
	ListActive(ctx context.Context) ([]*models.Product, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Subscription SubscriptionRepository
	WebhookEvent WebhookEventRepository
	Catalog      CatalogRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Subscription: NewSQLiteSubscriptionRepository(db),
		WebhookEvent: NewSQLiteWebhookEventRepository(db),
		Catalog:      NewSQLiteCatalogRepository(db),
	}
}

// formatTime renders t as RFC3339 UTC; nil stays NULL.
func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
