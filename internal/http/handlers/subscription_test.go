package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/http/mw"
	"github.com/jmylchreest/matchgenius-api/internal/models"
)

type mockSubscriptionReader struct {
	subs map[string]*models.Subscription
	err  error
}

func (m *mockSubscriptionReader) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.subs[userID], nil
}

func getSubscription(t *testing.T, h *SubscriptionHandler, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscription", nil)
	if userID != "" {
		req = req.WithContext(mw.WithUserClaims(req.Context(), &mw.UserClaims{UserID: userID}))
	}
	rr := httptest.NewRecorder()
	h.GetSubscription(rr, req)
	return rr
}

// ========================================
// SubscriptionHandler Tests
// ========================================

func TestGetSubscription_Unauthenticated(t *testing.T) {
	h := NewSubscriptionHandler(&mockSubscriptionReader{}, time.Minute, slog.Default())
	rr := getSubscription(t, h, "")

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "private, max-age=5" {
		t.Errorf("Cache-Control = %q, want private, max-age=5", cc)
	}
}

func TestGetSubscription_NoRow(t *testing.T) {
	h := NewSubscriptionHandler(&mockSubscriptionReader{}, time.Minute, slog.Default())
	rr := getSubscription(t, h, "user-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "null" {
		t.Errorf("body = %q, want null", body)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "private, max-age=60" {
		t.Errorf("Cache-Control = %q, want private, max-age=60", cc)
	}
}

func TestGetSubscription_ClientFieldNames(t *testing.T) {
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	subID, custID, priceID := "sub_1", "cus_1", "price_1"
	reader := &mockSubscriptionReader{subs: map[string]*models.Subscription{
		"user-1": {
			ID:                   "01HX",
			UserID:               "user-1",
			StripeCustomerID:     &custID,
			StripeSubscriptionID: &subID,
			StripePriceID:        &priceID,
			Status:               models.SubscriptionStatusActive,
			CurrentPeriodEnd:     &end,
		},
	}}
	h := NewSubscriptionHandler(reader, 2*time.Minute, slog.Default())
	rr := getSubscription(t, h, "user-1")

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"userId", "stripeCustomerId", "stripeSubscriptionId", "stripePriceId", "stripeCurrentPeriodEnd", "status"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing key %q in %s", key, rr.Body.String())
		}
	}
	if body["stripeSubscriptionId"] != "sub_1" || body["status"] != "active" {
		t.Errorf("body = %v", body)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "private, max-age=120" {
		t.Errorf("Cache-Control = %q, want private, max-age=120", cc)
	}
}

func TestGetSubscription_StorageError(t *testing.T) {
	h := NewSubscriptionHandler(&mockSubscriptionReader{err: errors.New("database is locked")}, time.Minute, slog.Default())
	rr := getSubscription(t, h, "user-1")

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "private, max-age=5" {
		t.Errorf("Cache-Control = %q, want private, max-age=5", cc)
	}
}
