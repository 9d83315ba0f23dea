package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

// ========================================
// Subscription Repository
// ========================================

// SQLiteSubscriptionRepository implements SubscriptionRepository for SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
	status, current_period_end, created_at, updated_at`

func (r *SQLiteSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ?`, userID)
}

func (r *SQLiteSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = ? ORDER BY updated_at DESC LIMIT 1`, subscriptionID)
}

func (r *SQLiteSubscriptionRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_customer_id = ? ORDER BY updated_at DESC LIMIT 1`, customerID)
}

// Upsert inserts or updates the row for patch.UserID.
// Subscription fields only overwrite when provided; the customer id is write-once.
func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, patch *models.SubscriptionPatch) (*models.Subscription, error) {
	if patch == nil || patch.UserID == "" {
		return nil, errors.New("subscription upsert requires a user id")
	}

	query := `INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			status, current_period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stripe_customer_id = COALESCE(subscriptions.stripe_customer_id, excluded.stripe_customer_id),
			stripe_subscription_id = COALESCE(excluded.stripe_subscription_id, subscriptions.stripe_subscription_id),
			stripe_price_id = COALESCE(excluded.stripe_price_id, subscriptions.stripe_price_id),
			status = COALESCE(excluded.status, subscriptions.status),
			current_period_end = COALESCE(excluded.current_period_end, subscriptions.current_period_end),
			updated_at = excluded.updated_at`

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx, query,
		ulid.Make().String(), patch.UserID,
		patch.StripeCustomerID, patch.StripeSubscriptionID, patch.StripePriceID,
		status, formatTime(patch.CurrentPeriodEnd), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return r.GetByUserID(ctx, patch.UserID)
}

func (r *SQLiteSubscriptionRepository) SetStatusForSubscription(ctx context.Context, userID, subscriptionID string, customerID *string, status models.SubscriptionStatus) (*models.Subscription, bool, error) {
	if userID == "" || subscriptionID == "" {
		return nil, false, errors.New("status update requires a user id and a subscription id")
	}

	query := `INSERT INTO subscriptions (id, user_id, stripe_customer_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stripe_customer_id = COALESCE(subscriptions.stripe_customer_id, excluded.stripe_customer_id),
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE subscriptions.stripe_subscription_id IS NULL
			OR subscriptions.stripe_subscription_id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		ulid.Make().String(), userID, customerID, string(status), now, now, subscriptionID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to set subscription status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	sub, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return sub, affected > 0, nil
}

func (r *SQLiteSubscriptionRepository) EnsureCustomer(ctx context.Context, userID, customerID string) (*models.Subscription, error) {
	return r.Upsert(ctx, &models.SubscriptionPatch{UserID: userID, StripeCustomerID: &customerID})
}

func (r *SQLiteSubscriptionRepository) ListStaleEntitled(ctx context.Context, before time.Time, limit int) ([]*models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status IN ('active', 'trialing')
			AND stripe_subscription_id IS NOT NULL
			AND current_period_end IS NOT NULL
			AND current_period_end < ?
		ORDER BY current_period_end ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, before.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SQLiteSubscriptionRepository) getOne(ctx context.Context, query string, args ...any) (*models.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var customerID, subscriptionID, priceID, status, periodEnd sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&sub.ID, &sub.UserID, &customerID, &subscriptionID, &priceID,
		&status, &periodEnd, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	sub.StripeCustomerID = nullString(customerID)
	sub.StripeSubscriptionID = nullString(subscriptionID)
	sub.StripePriceID = nullString(priceID)
	sub.Status = models.SubscriptionStatus(status.String)
	sub.CurrentPeriodEnd = parseNullTime(periodEnd)
	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sub, nil
}
