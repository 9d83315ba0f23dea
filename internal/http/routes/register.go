package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation.
//
// The Stripe webhook, the subscription read and the auth webhook are raw chi
// handlers and are mounted by the server directly.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.PublicGet(api, "/api/v1/stripe/products", h.Billing.ListProducts,
		mw.WithTags("Catalog"),
		mw.WithSummary("List products"),
		mw.WithDescription("Active products with their prices, served from the local catalog mirror."),
		mw.WithOperationID("listProducts"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require a session)
	// =========================================================================

	mw.ProtectedPost(api, "/api/v1/stripe/checkout", h.Billing.CreateCheckout,
		mw.WithTags("Billing"),
		mw.WithSummary("Create checkout session"),
		mw.WithOperationID("createCheckout"))
	mw.ProtectedPost(api, "/api/v1/stripe/portal", h.Billing.CreatePortal,
		mw.WithTags("Billing"),
		mw.WithSummary("Create customer portal session"),
		mw.WithOperationID("createPortal"))
	mw.ProtectedPost(api, "/api/v1/stripe/update-subscription", h.Billing.UpdateSubscription,
		mw.WithTags("Billing"),
		mw.WithSummary("Sync subscription after checkout"),
		mw.WithDescription("Refreshes the caller's subscription from Stripe. Called by clients when returning from checkout."),
		mw.WithOperationID("updateSubscription"))
	mw.ProtectedPost(api, "/api/v1/stripe/sync-subscription", h.Billing.SyncSubscription,
		mw.WithTags("Billing"),
		mw.WithSummary("Sync subscription"),
		mw.WithDescription("Refreshes a subscription from Stripe. Syncing another user requires the admin role."),
		mw.WithOperationID("syncSubscription"))

	// =========================================================================
	// Admin Routes (require the admin key)
	// =========================================================================

	if !h.IncludeAdmin() {
		return
	}

	mw.AdminGet(api, "/api/v1/admin/sync-subscription", h.Admin.AdminSync,
		mw.WithTags("Admin"),
		mw.WithSummary("Sync subscription by email or subscription ID"),
		mw.WithOperationID("adminSyncSubscription"))
	mw.AdminGet(api, "/api/v1/admin/webhook-events", h.Admin.ListWebhookEvents,
		mw.WithTags("Admin"),
		mw.WithSummary("List webhook deliveries"),
		mw.WithOperationID("listWebhookEvents"))
	mw.AdminGet(api, "/api/v1/admin/webhook-events/{id}", h.Admin.GetWebhookEvent,
		mw.WithTags("Admin"),
		mw.WithSummary("Get webhook delivery"),
		mw.WithOperationID("getWebhookEvent"))
}
