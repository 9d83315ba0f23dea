package routes

import (
	"context"

	"github.com/jmylchreest/matchgenius-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: stubHealthCheck,
		Livez:       stubLivez,
		Readyz:      stubReadyz,
		Billing:     &stubBillingHandlers{},
		Admin:       &stubAdminHandlers{},
	}
}

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

type stubBillingHandlers struct{}

func (s *stubBillingHandlers) CreateCheckout(_ context.Context, _ *handlers.CreateCheckoutInput) (*handlers.CreateCheckoutOutput, error) {
	return nil, nil
}

func (s *stubBillingHandlers) CreatePortal(_ context.Context, _ *struct{}) (*handlers.CreatePortalOutput, error) {
	return nil, nil
}

func (s *stubBillingHandlers) UpdateSubscription(_ context.Context, _ *struct{}) (*handlers.SubscriptionOutput, error) {
	return nil, nil
}

func (s *stubBillingHandlers) SyncSubscription(_ context.Context, _ *handlers.SyncSubscriptionInput) (*handlers.SubscriptionOutput, error) {
	return nil, nil
}

func (s *stubBillingHandlers) ListProducts(_ context.Context, _ *struct{}) (*handlers.ListProductsOutput, error) {
	return nil, nil
}

type stubAdminHandlers struct{}

func (s *stubAdminHandlers) AdminSync(_ context.Context, _ *handlers.AdminSyncInput) (*handlers.SubscriptionOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) ListWebhookEvents(_ context.Context, _ *handlers.ListWebhookEventsInput) (*handlers.ListWebhookEventsOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetWebhookEvent(_ context.Context, _ *handlers.GetWebhookEventInput) (*handlers.GetWebhookEventOutput, error) {
	return nil, nil
}
