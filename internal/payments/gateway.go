package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/jmylchreest/matchgenius-api/internal/metrics"
)

const breakerName = "stripe-api"

// GatewayConfig configures the Stripe gateway.
type GatewayConfig struct {
	SecretKey      string
	BreakerTimeout time.Duration // Time spent open before probing again
	AppVersion     string
}

// StripeGateway implements Gateway against the Stripe API.
// All calls run through a circuit breaker; processor 4xx responses do not count as failures.
type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewStripeGateway creates a gateway. Without a secret key every call returns ErrNotConfigured.
func NewStripeGateway(cfg GatewayConfig, logger *slog.Logger) *StripeGateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stripe-gateway")

	g := &StripeGateway{logger: logger}
	if cfg.SecretKey != "" {
		stripe.SetAppInfo(&stripe.AppInfo{
			Name:    "matchgenius-api",
			Version: cfg.AppVersion,
		})
		g.api = client.New(cfg.SecretKey, nil)
	}

	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return g
}

// execute runs fn through the breaker and maps processor errors to package errors.
func execute[T any](g *StripeGateway, op string, fn func() (T, error)) (T, error) {
	var zero T
	if g.api == nil {
		return zero, ErrNotConfigured
	}

	result, err := g.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		case isTransient(err):
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "client_error").Inc()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		if isNotFound(err) {
			return zero, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, result)
	}
	return typed, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	return execute(g, "get subscription", func() (*Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		s, err := g.api.Subscriptions.Get(id, params)
		if err != nil {
			return nil, err
		}
		return fromStripeSubscription(s), nil
	})
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*Subscription, error) {
	if limit <= 0 {
		limit = 10
	}
	return execute(g, "list subscriptions", func() ([]*Subscription, error) {
		params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID)}
		if status != "" {
			params.Status = stripe.String(status)
		}
		params.Context = ctx
		params.Limit = stripe.Int64(int64(limit))

		var out []*Subscription
		it := g.api.Subscriptions.List(params)
		for it.Next() && len(out) < limit {
			out = append(out, fromStripeSubscription(it.Subscription()))
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, id string) error {
	_, err := execute(g, "cancel subscription", func() (struct{}, error) {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		params.SetIdempotencyKey(uuid.NewString())
		_, err := g.api.Subscriptions.Cancel(id, params)
		return struct{}{}, err
	})
	return err
}

func (g *StripeGateway) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return execute(g, "get customer", func() (*Customer, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		c, err := g.api.Customers.Get(id, params)
		if err != nil {
			return nil, err
		}
		if c.Deleted {
			return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: "customer deleted"}
		}
		return fromStripeCustomer(c), nil
	})
}

func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	return execute(g, "find customer", func() (*Customer, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		it := g.api.Customers.List(params)
		if it.Next() {
			return fromStripeCustomer(it.Customer()), nil
		}
		return nil, it.Err()
	})
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (*Customer, error) {
	return execute(g, "create customer", func() (*Customer, error) {
		params := &stripe.CustomerParams{Email: stripe.String(email)}
		params.Context = ctx
		params.AddMetadata(MetadataUserID, userID)
		params.SetIdempotencyKey(uuid.NewString())
		c, err := g.api.Customers.New(params)
		if err != nil {
			return nil, err
		}
		return fromStripeCustomer(c), nil
	})
}

func (g *StripeGateway) SetCustomerUserID(ctx context.Context, customerID, userID string) error {
	_, err := execute(g, "update customer metadata", func() (struct{}, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		params.AddMetadata(MetadataUserID, userID)
		_, err := g.api.Customers.Update(customerID, params)
		return struct{}{}, err
	})
	return err
}

func (g *StripeGateway) UpdateCustomerEmail(ctx context.Context, customerID, email string) error {
	_, err := execute(g, "update customer email", func() (struct{}, error) {
		params := &stripe.CustomerParams{Email: stripe.String(email)}
		params.Context = ctx
		_, err := g.api.Customers.Update(customerID, params)
		return struct{}{}, err
	})
	return err
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	return execute(g, "create checkout session", func() (*CheckoutSession, error) {
		params := &stripe.CheckoutSessionParams{
			Customer: stripe.String(p.CustomerID),
			Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
			},
			SuccessURL: stripe.String(p.SuccessURL),
			CancelURL:  stripe.String(p.CancelURL),
			SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
				Metadata: map[string]string{MetadataUserID: p.UserID},
			},
		}
		params.Context = ctx
		params.AddMetadata(MetadataUserID, p.UserID)
		params.SetIdempotencyKey(uuid.NewString())

		cs, err := g.api.CheckoutSessions.New(params)
		if err != nil {
			return nil, err
		}
		return fromStripeCheckoutSession(cs), nil
	})
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return execute(g, "create portal session", func() (string, error) {
		params := &stripe.BillingPortalSessionParams{
			Customer:  stripe.String(customerID),
			ReturnURL: stripe.String(returnURL),
		}
		params.Context = ctx
		s, err := g.api.BillingPortalSessions.New(params)
		if err != nil {
			return "", err
		}
		return s.URL, nil
	})
}

func (g *StripeGateway) ListProducts(ctx context.Context) ([]*Product, error) {
	return execute(g, "list products", func() ([]*Product, error) {
		params := &stripe.ProductListParams{Active: stripe.Bool(true)}
		params.Context = ctx
		params.AddExpand("data.default_price")

		var out []*Product
		it := g.api.Products.List(params)
		for it.Next() {
			out = append(out, fromStripeProduct(it.Product()))
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// isTransient reports whether err should count against the breaker.
// Processor 4xx responses are the caller's problem, not an outage.
func isTransient(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 || se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

func isNotFound(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 404 || se.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
