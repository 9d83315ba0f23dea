// Package models defines the domain models for the application.
// The UserID fields reference Supabase auth user IDs (UUIDs).
package models

import (
	"time"
)

// SubscriptionStatus mirrors the payment processor's subscription status enum.
// The empty value means the status is unknown.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

// Valid reports whether s is one of the known processor statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled, SubscriptionStatusPaused, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired, SubscriptionStatusUnpaid:
		return true
	}
	return false
}

// Entitled reports whether the status grants access on its own.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription is the persisted per-user billing record. One row per user.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	StripeCustomerID     *string            `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty"`
	StripePriceID        *string            `json:"stripe_price_id,omitempty"`
	Status               SubscriptionStatus `json:"status,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionPatch carries the fields an event or sync actually provides.
// Nil fields are left untouched by the upsert.
type SubscriptionPatch struct {
	UserID               string
	StripeCustomerID     *string
	StripeSubscriptionID *string
	StripePriceID        *string
	Status               *SubscriptionStatus
	CurrentPeriodEnd     *time.Time
}

// IsEmpty reports whether the patch would change nothing besides updated_at.
func (p *SubscriptionPatch) IsEmpty() bool {
	return p.StripeCustomerID == nil && p.StripeSubscriptionID == nil && p.StripePriceID == nil &&
		p.Status == nil && p.CurrentPeriodEnd == nil
}

// SubscriptionView is the client-facing shape of a Subscription (camelCase fields).
type SubscriptionView struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"userId"`
	StripeCustomerID       *string            `json:"stripeCustomerId"`
	StripeSubscriptionID   *string            `json:"stripeSubscriptionId"`
	StripePriceID          *string            `json:"stripePriceId"`
	StripeCurrentPeriodEnd *time.Time         `json:"stripeCurrentPeriodEnd"`
	Status                 SubscriptionStatus `json:"status,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// View converts the record to its client-facing shape. A nil record yields nil.
func (s *Subscription) View() *SubscriptionView {
	if s == nil {
		return nil
	}
	return &SubscriptionView{
		ID:                     s.ID,
		UserID:                 s.UserID,
		StripeCustomerID:       s.StripeCustomerID,
		StripeSubscriptionID:   s.StripeSubscriptionID,
		StripePriceID:          s.StripePriceID,
		StripeCurrentPeriodEnd: s.CurrentPeriodEnd,
		Status:                 s.Status,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

// IsEntitled is the entitlement predicate shared by server and client.
//
// A subscription id must be present. A known status decides on its own
// (active or trialing). Only when the status is missing is the paid-through
// date compared against now.
func IsEntitled(v *SubscriptionView, now time.Time) bool {
	if v == nil || v.StripeSubscriptionID == nil || *v.StripeSubscriptionID == "" {
		return false
	}
	if v.Status != "" {
		return v.Status.Entitled()
	}
	return v.StripeCurrentPeriodEnd != nil && v.StripeCurrentPeriodEnd.After(now)
}

// WebhookOutcome is the result of reconciling one inbound event.
type WebhookOutcome string

const (
	WebhookOutcomeApplied    WebhookOutcome = "applied"
	WebhookOutcomeIgnored    WebhookOutcome = "ignored"
	WebhookOutcomeUnresolved WebhookOutcome = "unresolved"
	WebhookOutcomeMalformed  WebhookOutcome = "malformed"
	WebhookOutcomeFailed     WebhookOutcome = "failed"
)

// WebhookEvent is a delivery log entry for a verified payment processor event.
// Attempts counts deliveries of the same event ID.
type WebhookEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Outcome     WebhookOutcome `json:"outcome"`
	UserID      string         `json:"user_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	ArchiveKey  string         `json:"archive_key,omitempty"`
	Attempts    int            `json:"attempts"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

// Product is a mirrored payment processor product with its default price.
type Product struct {
	ID              string    `json:"id"`
	StripeProductID string    `json:"stripe_product_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Active          bool      `json:"active"`
	DefaultPriceID  string    `json:"default_price_id,omitempty"`
	Prices          []*Price  `json:"prices,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Price is a mirrored payment processor price.
type Price struct {
	ID              string    `json:"id"`
	StripePriceID   string    `json:"stripe_price_id"`
	StripeProductID string    `json:"stripe_product_id"`
	Currency        string    `json:"currency"`
	UnitAmount      int64     `json:"unit_amount"`
	Type            string    `json:"type"` // one_time or recurring
	Interval        string    `json:"interval,omitempty"`
	IntervalCount   int64     `json:"interval_count,omitempty"`
	Active          bool      `json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}
