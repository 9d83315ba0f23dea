package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// BillingService is the subset of service.BillingService used by BillingHandler.
type BillingService interface {
	Checkout(ctx context.Context, userID, email, priceID string) (*service.CheckoutResult, error)
	Portal(ctx context.Context, userID string) (string, error)
	SyncAfterCheckout(ctx context.Context, userID string) (*models.Subscription, error)
	SyncSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
}

// BillingHandler handles checkout, portal, sync and catalog endpoints.
type BillingHandler struct {
	billing BillingService
	logger  *slog.Logger
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(billing BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger.With("component", "billing-handler")}
}

// CreateCheckoutInput represents the checkout request.
type CreateCheckoutInput struct {
	Body struct {
		PriceID string `json:"priceId" minLength:"1" doc:"Stripe price ID of the plan to purchase"`
	}
}

// CreateCheckoutOutput represents the checkout response.
type CreateCheckoutOutput struct {
	Body struct {
		URL       string `json:"url" doc:"Stripe-hosted checkout URL"`
		SessionID string `json:"sessionId" doc:"Checkout session ID"`
	}
}

// CreateCheckout creates a subscription checkout session for the caller.
func (h *BillingHandler) CreateCheckout(ctx context.Context, input *CreateCheckoutInput) (*CreateCheckoutOutput, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	res, err := h.billing.Checkout(ctx, claims.UserID, claims.Email, input.Body.PriceID)
	if err != nil {
		return nil, billingError(h.logger, "create checkout session", err)
	}

	out := &CreateCheckoutOutput{}
	out.Body.URL = res.URL
	out.Body.SessionID = res.SessionID
	return out, nil
}

// CreatePortalOutput represents the billing portal response.
type CreatePortalOutput struct {
	Body struct {
		URL string `json:"url" doc:"Stripe-hosted billing portal URL"`
	}
}

// CreatePortal creates a billing portal session for the caller.
func (h *BillingHandler) CreatePortal(ctx context.Context, _ *struct{}) (*CreatePortalOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	url, err := h.billing.Portal(ctx, userID)
	if err != nil {
		return nil, billingError(h.logger, "create portal session", err)
	}

	out := &CreatePortalOutput{}
	out.Body.URL = url
	return out, nil
}

// SubscriptionOutput returns a subscription record in client field naming.
type SubscriptionOutput struct {
	Body *models.SubscriptionView
}

// UpdateSubscription syncs the caller's active subscription right after checkout.
func (h *BillingHandler) UpdateSubscription(ctx context.Context, _ *struct{}) (*SubscriptionOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	sub, err := h.billing.SyncAfterCheckout(ctx, userID)
	if err != nil {
		return nil, billingError(h.logger, "update subscription", err)
	}
	return &SubscriptionOutput{Body: sub.View()}, nil
}

// SyncSubscriptionRequest optionally targets another user or a specific subscription.
type SyncSubscriptionRequest struct {
	UserID               string `json:"userId,omitempty" doc:"User to sync; other users require the admin role"`
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty" doc:"Specific Stripe subscription to sync"`
}

// SyncSubscriptionInput represents the sync request.
type SyncSubscriptionInput struct {
	Body *SyncSubscriptionRequest
}

// SyncSubscription refreshes a subscription record from Stripe.
func (h *BillingHandler) SyncSubscription(ctx context.Context, input *SyncSubscriptionInput) (*SubscriptionOutput, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	target := claims.UserID
	var subscriptionID string
	if input.Body != nil {
		if input.Body.UserID != "" && input.Body.UserID != claims.UserID {
			if !claims.IsAdmin() {
				return nil, huma.Error403Forbidden("admin role required to sync another user")
			}
			target = input.Body.UserID
		}
		subscriptionID = input.Body.StripeSubscriptionID
	}

	sub, err := h.billing.SyncSubscription(ctx, target, subscriptionID)
	if err != nil {
		return nil, billingError(h.logger, "sync subscription", err)
	}
	return &SubscriptionOutput{Body: sub.View()}, nil
}

// PriceResponse is a purchasable price.
type PriceResponse struct {
	ID            string `json:"id"`
	Currency      string `json:"currency"`
	UnitAmount    int64  `json:"unitAmount" doc:"Amount in the smallest currency unit"`
	Type          string `json:"type" enum:"one_time,recurring"`
	Interval      string `json:"interval,omitempty"`
	IntervalCount int64  `json:"intervalCount,omitempty"`
}

// ProductResponse is an active product with its prices.
type ProductResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	DefaultPriceID string          `json:"defaultPriceId,omitempty"`
	Prices         []PriceResponse `json:"prices"`
}

// ListProductsOutput represents the product catalog response.
type ListProductsOutput struct {
	Body struct {
		Products []ProductResponse `json:"products"`
	}
}

// ListProducts returns the active product catalog.
func (h *BillingHandler) ListProducts(ctx context.Context, _ *struct{}) (*ListProductsOutput, error) {
	products, err := h.billing.ListProducts(ctx)
	if err != nil {
		return nil, billingError(h.logger, "list products", err)
	}

	out := &ListProductsOutput{}
	out.Body.Products = make([]ProductResponse, 0, len(products))
	for _, p := range products {
		pr := ProductResponse{
			ID:             p.StripeProductID,
			Name:           p.Name,
			Description:    p.Description,
			DefaultPriceID: p.DefaultPriceID,
			Prices:         make([]PriceResponse, 0, len(p.Prices)),
		}
		for _, price := range p.Prices {
			pr.Prices = append(pr.Prices, PriceResponse{
				ID:            price.StripePriceID,
				Currency:      price.Currency,
				UnitAmount:    price.UnitAmount,
				Type:          price.Type,
				Interval:      price.Interval,
				IntervalCount: price.IntervalCount,
			})
		}
		out.Body.Products = append(out.Body.Products, pr)
	}
	return out, nil
}
