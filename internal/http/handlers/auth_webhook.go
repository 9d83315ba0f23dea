package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// AccountSyncer mirrors identity changes to billing.
type AccountSyncer interface {
	UpdateCustomerEmail(ctx context.Context, userID, email string) error
	CancelForUser(ctx context.Context, userID string) error
}

// AuthWebhookEvent is an identity provider user lifecycle event.
type AuthWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AuthUserData is the user object carried by user.* events.
type AuthUserData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	OldEmail string `json:"old_email,omitempty"`
}

// AuthWebhookHandler handles identity provider webhooks signed with Standard Webhooks.
type AuthWebhookHandler struct {
	wh      *svix.Webhook
	account AccountSyncer
	logger  *slog.Logger
}

// NewAuthWebhookHandler creates the handler. secret is a "whsec_" signing secret.
func NewAuthWebhookHandler(secret string, account AccountSyncer, logger *slog.Logger) (*AuthWebhookHandler, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook verifier: %w", err)
	}
	return &AuthWebhookHandler{wh: wh, account: account, logger: logger.With("component", "auth-webhook")}, nil
}

// HandleWebhook processes incoming identity provider webhooks.
func (h *AuthWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}

	// svix accepts both svix-* and webhook-* header names
	if err := h.wh.Verify(payload, r.Header); err != nil {
		h.logger.Warn("failed to verify webhook signature", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid signature"})
		return
	}

	var event AuthWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook event", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "webhook processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleEvent routes events to appropriate handlers.
func (h *AuthWebhookHandler) handleEvent(ctx context.Context, event AuthWebhookEvent) error {
	switch event.Type {
	case "user.updated", "user.deleted":
	default:
		h.logger.Debug("unhandled auth webhook event type", "type", event.Type)
		return nil
	}

	var user AuthUserData
	if err := json.Unmarshal(event.Data, &user); err != nil || user.ID == "" {
		h.logger.Warn("auth webhook event without user", "type", event.Type)
		return nil
	}

	switch event.Type {
	case "user.updated":
		if user.Email == "" || user.Email == user.OldEmail {
			return nil
		}
		if err := h.account.UpdateCustomerEmail(ctx, user.ID, user.Email); err != nil {
			return err
		}
		h.logger.Info("customer email updated", "user_id", user.ID)
	case "user.deleted":
		if err := h.account.CancelForUser(ctx, user.ID); err != nil {
			return err
		}
		h.logger.Info("subscription cancel requested for deleted user", "user_id", user.ID)
	}
	return nil
}
