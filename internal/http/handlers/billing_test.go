package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// mockBilling implements BillingService, AdminBilling and AccountSyncer.
type mockBilling struct {
	mu sync.Mutex

	err      error
	sub      *models.Subscription
	products []*models.Product

	checkoutCalls []string // userID|email|priceID
	syncCalls     []string // userID|subscriptionID
	emailUpdates  []string // userID|email
	cancels       []string
	adminEmail    string
	adminSubID    string
}

func (m *mockBilling) Checkout(ctx context.Context, userID, email, priceID string) (*service.CheckoutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkoutCalls = append(m.checkoutCalls, userID+"|"+email+"|"+priceID)
	if m.err != nil {
		return nil, m.err
	}
	return &service.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
}

func (m *mockBilling) Portal(ctx context.Context, userID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://billing.stripe.com/p/session_1", nil
}

func (m *mockBilling) SyncAfterCheckout(ctx context.Context, userID string) (*models.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sub, nil
}

func (m *mockBilling) SyncSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCalls = append(m.syncCalls, userID+"|"+subscriptionID)
	if m.err != nil {
		return nil, m.err
	}
	return &models.Subscription{UserID: userID}, nil
}

func (m *mockBilling) ListProducts(ctx context.Context) ([]*models.Product, error) {
	return m.products, m.err
}

func (m *mockBilling) AdminSyncByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	m.adminEmail = email
	if m.err != nil {
		return nil, m.err
	}
	return m.sub, nil
}

func (m *mockBilling) AdminSyncBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	m.adminSubID = subscriptionID
	if m.err != nil {
		return nil, m.err
	}
	return m.sub, nil
}

func (m *mockBilling) UpdateCustomerEmail(ctx context.Context, userID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailUpdates = append(m.emailUpdates, userID+"|"+email)
	return m.err
}

func (m *mockBilling) CancelForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, userID)
	return m.err
}

// ========================================
// Checkout / Portal Tests
// ========================================

func TestCreateCheckout(t *testing.T) {
	billing := &mockBilling{}
	h := NewBillingHandler(billing, slog.Default())

	input := &CreateCheckoutInput{}
	input.Body.PriceID = "price_pro"

	out, err := h.CreateCheckout(withUser("user-1", "a@example.com", ""), input)
	if err != nil {
		t.Fatalf("CreateCheckout() error = %v", err)
	}
	if out.Body.SessionID != "cs_1" || out.Body.URL == "" {
		t.Errorf("output = %+v", out.Body)
	}
	if len(billing.checkoutCalls) != 1 || billing.checkoutCalls[0] != "user-1|a@example.com|price_pro" {
		t.Errorf("checkout calls = %v", billing.checkoutCalls)
	}

	if _, err := h.CreateCheckout(context.Background(), input); statusOf(err) != 401 {
		t.Errorf("anonymous checkout error = %v, want 401", err)
	}
}

func TestBillingErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no customer", service.ErrNoCustomer, 404},
		{"no subscription", fmt.Errorf("sync: %w", service.ErrNoSubscription), 404},
		{"unresolved", service.ErrUserNotResolved, 404},
		{"mismatch", service.ErrSubscriptionMismatch, 403},
		{"invalid price", service.ErrInvalidPrice, 400},
		{"not configured", payments.ErrNotConfigured, 503},
		{"breaker open", fmt.Errorf("get subscription: %w", payments.ErrUnavailable), 503},
		{"unexpected", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBillingHandler(&mockBilling{err: tt.err}, slog.Default())
			_, err := h.CreatePortal(withUser("user-1", "", ""), nil)
			if got := statusOf(err); got != tt.want {
				t.Errorf("status = %d, want %d (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestCreatePortal(t *testing.T) {
	h := NewBillingHandler(&mockBilling{}, slog.Default())
	out, err := h.CreatePortal(withUser("user-1", "", ""), nil)
	if err != nil {
		t.Fatalf("CreatePortal() error = %v", err)
	}
	if out.Body.URL != "https://billing.stripe.com/p/session_1" {
		t.Errorf("URL = %q", out.Body.URL)
	}
}

// ========================================
// Sync Tests
// ========================================

func TestUpdateSubscription(t *testing.T) {
	subID := "sub_1"
	h := NewBillingHandler(&mockBilling{sub: &models.Subscription{UserID: "user-1", StripeSubscriptionID: &subID, Status: models.SubscriptionStatusActive}}, slog.Default())

	out, err := h.UpdateSubscription(withUser("user-1", "", ""), nil)
	if err != nil {
		t.Fatalf("UpdateSubscription() error = %v", err)
	}
	if out.Body == nil || out.Body.UserID != "user-1" || out.Body.Status != models.SubscriptionStatusActive {
		t.Errorf("body = %+v", out.Body)
	}
}

func TestSyncSubscription_Targets(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		body       *SyncSubscriptionRequest
		wantStatus int
		wantCall   string
	}{
		{"self without body", "", nil, 0, "user-1|"},
		{"self with subscription", "", &SyncSubscriptionRequest{StripeSubscriptionID: "sub_9"}, 0, "user-1|sub_9"},
		{"self named explicitly", "", &SyncSubscriptionRequest{UserID: "user-1"}, 0, "user-1|"},
		{"other user as member", "", &SyncSubscriptionRequest{UserID: "user-2"}, 403, ""},
		{"other user as admin", "admin", &SyncSubscriptionRequest{UserID: "user-2"}, 0, "user-2|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billing := &mockBilling{}
			h := NewBillingHandler(billing, slog.Default())

			out, err := h.SyncSubscription(withUser("user-1", "", tt.role), &SyncSubscriptionInput{Body: tt.body})
			if tt.wantStatus != 0 {
				if statusOf(err) != tt.wantStatus {
					t.Fatalf("error = %v, want status %d", err, tt.wantStatus)
				}
				if len(billing.syncCalls) != 0 {
					t.Error("service must not be called when forbidden")
				}
				return
			}
			if err != nil {
				t.Fatalf("SyncSubscription() error = %v", err)
			}
			if len(billing.syncCalls) != 1 || billing.syncCalls[0] != tt.wantCall {
				t.Errorf("sync calls = %v, want [%s]", billing.syncCalls, tt.wantCall)
			}
			if out.Body == nil {
				t.Error("expected a body")
			}
		})
	}
}

// ========================================
// Catalog Tests
// ========================================

func TestListProducts(t *testing.T) {
	billing := &mockBilling{products: []*models.Product{{
		StripeProductID: "prod_1",
		Name:            "Pro",
		DefaultPriceID:  "price_m",
		Active:          true,
		UpdatedAt:       time.Now(),
		Prices: []*models.Price{
			{StripePriceID: "price_m", Currency: "usd", UnitAmount: 999, Type: "recurring", Interval: "month", IntervalCount: 1},
		},
	}}}
	h := NewBillingHandler(billing, slog.Default())

	out, err := h.ListProducts(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if len(out.Body.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(out.Body.Products))
	}
	p := out.Body.Products[0]
	if p.ID != "prod_1" || p.DefaultPriceID != "price_m" || len(p.Prices) != 1 || p.Prices[0].UnitAmount != 999 {
		t.Errorf("product = %+v", p)
	}
}

func TestListProducts_EmptyIsArray(t *testing.T) {
	h := NewBillingHandler(&mockBilling{}, slog.Default())
	out, err := h.ListProducts(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Products == nil {
		t.Error("Products should be an empty slice, not nil")
	}
}
