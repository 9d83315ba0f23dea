package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// AdminBilling is the operator subset of service.BillingService.
type AdminBilling interface {
	AdminSyncByEmail(ctx context.Context, email string) (*models.Subscription, error)
	AdminSyncBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
}

// WebhookEventLog reads the processor webhook delivery log.
type WebhookEventLog interface {
	GetByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error)
}

// EventArchive reads archived raw payloads.
type EventArchive interface {
	IsEnabled() bool
	GetEvent(ctx context.Context, key, eventID string) ([]byte, error)
}

// AdminHandler handles operator endpoints guarded by the admin key.
type AdminHandler struct {
	billing AdminBilling
	events  WebhookEventLog
	archive EventArchive
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler. archive may be nil.
func NewAdminHandler(billing AdminBilling, events WebhookEventLog, archive EventArchive, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{billing: billing, events: events, archive: archive, logger: logger.With("component", "admin-handler")}
}

// AdminSyncInput selects the subscription to sync by customer email or subscription id.
type AdminSyncInput struct {
	Email          string `query:"email" format:"email" doc:"Email of the Stripe customer"`
	SubscriptionID string `query:"subscription_id" doc:"Stripe subscription ID"`
}

// AdminSync repairs a subscription record from Stripe on behalf of a user.
func (h *AdminHandler) AdminSync(ctx context.Context, input *AdminSyncInput) (*SubscriptionOutput, error) {
	var (
		sub *models.Subscription
		err error
	)
	switch {
	case input.SubscriptionID != "":
		sub, err = h.billing.AdminSyncBySubscriptionID(ctx, input.SubscriptionID)
	case input.Email != "":
		sub, err = h.billing.AdminSyncByEmail(ctx, input.Email)
	default:
		return nil, huma.Error400BadRequest("email or subscription_id is required")
	}
	if err != nil {
		return nil, billingError(h.logger, "sync subscription", err)
	}

	h.logger.Info("admin subscription sync", "user_id", sub.UserID, "status", sub.Status)
	return &SubscriptionOutput{Body: sub.View()}, nil
}

// ListWebhookEventsInput represents the delivery log query.
type ListWebhookEventsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum entries to return"`
}

// ListWebhookEventsOutput represents the delivery log response.
type ListWebhookEventsOutput struct {
	Body struct {
		Events []*models.WebhookEvent `json:"events"`
	}
}

// ListWebhookEvents returns the most recent webhook deliveries.
func (h *AdminHandler) ListWebhookEvents(ctx context.Context, input *ListWebhookEventsInput) (*ListWebhookEventsOutput, error) {
	events, err := h.events.ListRecent(ctx, input.Limit)
	if err != nil {
		h.logger.Error("failed to list webhook events", "error", err)
		return nil, huma.Error500InternalServerError("failed to list webhook events")
	}
	out := &ListWebhookEventsOutput{}
	out.Body.Events = events
	if out.Body.Events == nil {
		out.Body.Events = []*models.WebhookEvent{}
	}
	return out, nil
}

// GetWebhookEventInput selects one delivery log entry.
type GetWebhookEventInput struct {
	ID             string `path:"id" doc:"Stripe event ID"`
	IncludePayload bool   `query:"include_payload" doc:"Decrypt and include the archived raw payload"`
}

// GetWebhookEventOutput represents one delivery with its optional payload.
type GetWebhookEventOutput struct {
	Body struct {
		Event   *models.WebhookEvent `json:"event"`
		Payload json.RawMessage      `json:"payload,omitempty"`
	}
}

// GetWebhookEvent returns one delivery log entry.
func (h *AdminHandler) GetWebhookEvent(ctx context.Context, input *GetWebhookEventInput) (*GetWebhookEventOutput, error) {
	ev, err := h.events.GetByID(ctx, input.ID)
	if err != nil {
		h.logger.Error("failed to get webhook event", "event_id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("failed to get webhook event")
	}
	if ev == nil {
		return nil, huma.Error404NotFound("webhook event not found")
	}

	out := &GetWebhookEventOutput{}
	out.Body.Event = ev
	if !input.IncludePayload {
		return out, nil
	}

	if h.archive == nil || !h.archive.IsEnabled() || ev.ArchiveKey == "" {
		return nil, huma.Error404NotFound("payload not archived")
	}
	payload, err := h.archive.GetEvent(ctx, ev.ArchiveKey, ev.ID)
	if err != nil {
		if errors.Is(err, service.ErrStorageDisabled) {
			return nil, huma.Error404NotFound("payload not archived")
		}
		h.logger.Error("failed to read archived payload", "event_id", ev.ID, "error", err)
		return nil, huma.Error500InternalServerError("failed to read archived payload")
	}
	out.Body.Payload = payload
	return out, nil
}
