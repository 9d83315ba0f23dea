package payments

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Verifier checks webhook signatures against the endpoint secret.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the given endpoint secret ("whsec_...").
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the signature header against payload and returns the parsed event.
// API version mismatches are tolerated; only the object fields we read matter.
func (v *Verifier) Verify(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event has no data", ErrInvalidSignature)
	}

	return &Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Object:  event.Data.Raw,
		Payload: payload,
	}, nil
}

// DecodeSubscription parses a subscription event object.
func DecodeSubscription(raw json.RawMessage) (*Subscription, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("failed to decode subscription: missing id")
	}
	return fromStripeSubscription(&s), nil
}

// DecodeCheckoutSession parses a checkout.session event object.
func DecodeCheckoutSession(raw json.RawMessage) (*CheckoutSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if cs.ID == "" {
		return nil, fmt.Errorf("failed to decode checkout session: missing id")
	}
	return fromStripeCheckoutSession(&cs), nil
}

// DecodeInvoice parses an invoice event object.
func DecodeInvoice(raw json.RawMessage) (*Invoice, error) {
	var in stripe.Invoice
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("failed to decode invoice: missing id")
	}
	out := &Invoice{
		ID:            in.ID,
		BillingReason: string(in.BillingReason),
		Metadata:      in.Metadata,
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	if in.Subscription != nil {
		out.SubscriptionID = in.Subscription.ID
	}
	return out, nil
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:       s.ID,
		Status:   string(s.Status),
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	if s.CurrentPeriodEnd > 0 {
		t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}

func fromStripeCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       cs.ID,
		Mode:     string(cs.Mode),
		URL:      cs.URL,
		Metadata: cs.Metadata,
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out
}

func fromStripeCustomer(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}
}

func fromStripeProduct(p *stripe.Product) *Product {
	out := &Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
	}
	if p.DefaultPrice != nil {
		out.DefaultPriceID = p.DefaultPrice.ID
		if p.DefaultPrice.Currency != "" {
			out.Prices = append(out.Prices, fromStripePrice(p.DefaultPrice, p.ID))
		}
	}
	return out
}

func fromStripePrice(p *stripe.Price, productID string) Price {
	out := Price{
		ID:         p.ID,
		ProductID:  productID,
		Currency:   string(p.Currency),
		UnitAmount: p.UnitAmount,
		Type:       string(p.Type),
		Active:     p.Active,
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
		out.IntervalCount = p.Recurring.IntervalCount
	}
	return out
}
