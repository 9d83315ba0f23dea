package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/matchgenius-api/internal/logging"
	"github.com/jmylchreest/matchgenius-api/internal/metrics"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// maxWebhookBodySize bounds processor webhook payloads.
const maxWebhookBodySize = 256 << 10

// EventVerifier authenticates a raw webhook payload.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*payments.Event, error)
}

// EventReconciler applies a verified event.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev *payments.Event) (*service.ReconcileResult, error)
}

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	verifier   EventVerifier
	reconciler EventReconciler
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(verifier EventVerifier, reconciler EventReconciler, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger.With("component", "stripe-webhook"),
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since the signature covers the exact request bytes.
//
// Responses: 400 for verification failures and permanent reconcile errors,
// 500 for transient failures so Stripe retries, 200 otherwise.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := h.verifier.Verify(payload, sigHeader)
	if err != nil {
		metrics.WebhookVerificationFailures.Inc()
		h.logger.Warn("webhook signature verification failed",
			"signature", logging.Truncate(sigHeader, 10),
			"error", err,
		)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid signature"})
		return
	}

	ctx := logging.WithEventID(r.Context(), event.ID)
	if _, err := h.reconciler.Reconcile(ctx, event); err != nil {
		if service.IsPermanent(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: permanentReason(err)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "webhook processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func permanentReason(err error) string {
	if errors.Is(err, service.ErrUserNotResolved) {
		return "no user associated with event"
	}
	return "malformed event"
}
