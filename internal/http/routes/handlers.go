package routes

import (
	"context"

	"github.com/jmylchreest/matchgenius-api/internal/http/handlers"
)

// BillingHandlers defines the interface for session-authenticated billing operations.
type BillingHandlers interface {
	CreateCheckout(ctx context.Context, input *handlers.CreateCheckoutInput) (*handlers.CreateCheckoutOutput, error)
	CreatePortal(ctx context.Context, input *struct{}) (*handlers.CreatePortalOutput, error)
	UpdateSubscription(ctx context.Context, input *struct{}) (*handlers.SubscriptionOutput, error)
	SyncSubscription(ctx context.Context, input *handlers.SyncSubscriptionInput) (*handlers.SubscriptionOutput, error)
	ListProducts(ctx context.Context, input *struct{}) (*handlers.ListProductsOutput, error)
}

// AdminHandlers defines the interface for operator operations guarded by the admin key.
type AdminHandlers interface {
	AdminSync(ctx context.Context, input *handlers.AdminSyncInput) (*handlers.SubscriptionOutput, error)
	ListWebhookEvents(ctx context.Context, input *handlers.ListWebhookEventsInput) (*handlers.ListWebhookEventsOutput, error)
	GetWebhookEvent(ctx context.Context, input *handlers.GetWebhookEventInput) (*handlers.GetWebhookEventOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Billing BillingHandlers
	Admin   AdminHandlers // May be nil when no admin key is configured
}

// IncludeAdmin returns true if admin endpoints should be registered.
func (h *Handlers) IncludeAdmin() bool {
	return h.Admin != nil
}
