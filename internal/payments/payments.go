// Package payments wraps the Stripe SDK behind the Gateway interface.
// Vendor types do not leave this package; callers see the domain types below.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrMissingSignature is returned when a webhook arrives without a signature header.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature is returned when the signature does not verify or no secret is configured.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNotFound is returned when the processor has no such object.
	ErrNotFound = errors.New("payment processor object not found")
	// ErrNotConfigured is returned by gateway calls when no API key is set.
	ErrNotConfigured = errors.New("payment processor not configured")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("payment processor unavailable")
)

// MetadataUserID is the metadata key carrying our user id on processor objects.
const MetadataUserID = "userId"

// Event is a verified processor event.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	// Object is the raw JSON of event.data.object.
	Object json.RawMessage
	// Payload is the verified request body, kept for archiving.
	Payload []byte
}

// Subscription is the subset of a processor subscription this service stores.
type Subscription struct {
	ID               string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
	Metadata         map[string]string
}

// CheckoutSession is a hosted checkout session.
type CheckoutSession struct {
	ID             string
	Mode           string
	URL            string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// Invoice is the subset of an invoice needed for renewals and failures.
type Invoice struct {
	ID             string
	BillingReason  string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// Customer is a processor customer.
type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// UserID returns the userId stored in the customer's metadata.
func (c *Customer) UserID() string {
	if c == nil {
		return ""
	}
	return c.Metadata[MetadataUserID]
}

// Product is an active catalog product with its prices.
type Product struct {
	ID             string
	Name           string
	Description    string
	Active         bool
	DefaultPriceID string
	Prices         []Price
}

// Price is a catalog price.
type Price struct {
	ID            string
	ProductID     string
	Currency      string
	UnitAmount    int64
	Type          string
	Interval      string
	IntervalCount int64
	Active        bool
}

// CheckoutParams describes a subscription-mode checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// Gateway is the set of processor operations used by the service layer.
type Gateway interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	// ListSubscriptions lists a customer's subscriptions; status "" means any non-terminal status.
	ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*Subscription, error)
	CancelSubscription(ctx context.Context, id string) error

	GetCustomer(ctx context.Context, id string) (*Customer, error)
	// FindCustomerByEmail returns the first customer with the email, or nil.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email, userID string) (*Customer, error)
	SetCustomerUserID(ctx context.Context, customerID, userID string) error
	UpdateCustomerEmail(ctx context.Context, customerID, email string) error

	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	ListProducts(ctx context.Context) ([]*Product, error)
}
