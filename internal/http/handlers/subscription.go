package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

// SubscriptionReader reads a user's subscription record; nil means none.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// SubscriptionHandler serves the client subscription read endpoint.
type SubscriptionHandler struct {
	reader SubscriptionReader
	maxAge time.Duration
	logger *slog.Logger
}

// NewSubscriptionHandler creates the handler. maxAge is the private cache lifetime for authenticated reads.
func NewSubscriptionHandler(reader SubscriptionReader, maxAge time.Duration, logger *slog.Logger) *SubscriptionHandler {
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}
	return &SubscriptionHandler{reader: reader, maxAge: maxAge, logger: logger}
}

// errorMaxAge keeps anonymous and failed responses from sticking in browser caches.
const errorMaxAge = 5

// GetSubscription returns the caller's subscription in client field naming, or null.
// Must run behind mw.OptionalAuth.
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	if userID == "" {
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", errorMaxAge))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	sub, err := h.reader.GetSubscription(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read subscription", "user_id", userID, "error", err)
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", errorMaxAge))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to load subscription"})
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(h.maxAge.Seconds())))
	w.Header().Set("Vary", "Authorization, Cookie")
	// a nil view encodes as null
	writeJSON(w, http.StatusOK, sub.View())
}
