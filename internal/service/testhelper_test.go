package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/database/migrations"
	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestRepos creates repositories over a migrated in-memory database.
func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewRepositories(db)
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.SubscriptionStatus) *models.SubscriptionStatus { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// mockGateway is an in-memory payments.Gateway.
type mockGateway struct {
	mu sync.Mutex

	subscriptions map[string]*payments.Subscription
	customers     map[string]*payments.Customer
	products      []*payments.Product
	err           error // returned by every call when set

	getSubscriptionCalls int
	canceled             []string
	checkouts            []payments.CheckoutParams
	emailUpdates         map[string]string
	nextCustomer         int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		subscriptions: make(map[string]*payments.Subscription),
		customers:     make(map[string]*payments.Customer),
		emailUpdates:  make(map[string]string),
	}
}

func (m *mockGateway) addSubscription(s *payments.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = s
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (*payments.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getSubscriptionCalls++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockGateway) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*payments.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*payments.Subscription
	for _, s := range m.subscriptions {
		if s.CustomerID != customerID {
			continue
		}
		if status != "" && status != "all" && s.Status != status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockGateway) CancelSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.subscriptions[id]; !ok {
		return payments.ErrNotFound
	}
	m.canceled = append(m.canceled, id)
	return nil
}

func (m *mockGateway) GetCustomer(ctx context.Context, id string) (*payments.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.customers[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	return c, nil
}

func (m *mockGateway) FindCustomerByEmail(ctx context.Context, email string) (*payments.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockGateway) CreateCustomer(ctx context.Context, email, userID string) (*payments.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.nextCustomer++
	c := &payments.Customer{
		ID:       "cus_new" + string(rune('0'+m.nextCustomer)),
		Email:    email,
		Metadata: map[string]string{payments.MetadataUserID: userID},
	}
	m.customers[c.ID] = c
	return c, nil
}

func (m *mockGateway) SetCustomerUserID(ctx context.Context, customerID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return payments.ErrNotFound
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata[payments.MetadataUserID] = userID
	return nil
}

func (m *mockGateway) UpdateCustomerEmail(ctx context.Context, customerID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.emailUpdates[customerID] = email
	return nil
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.checkouts = append(m.checkouts, params)
	return &payments.CheckoutSession{ID: "cs_test", Mode: "subscription", URL: "https://checkout.stripe.com/c/cs_test", CustomerID: params.CustomerID}, nil
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://billing.stripe.com/p/" + customerID, nil
}

func (m *mockGateway) ListProducts(ctx context.Context) ([]*payments.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

// fakeCache records invalidations.
type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
}

// fakeSink collects archive records.
type fakeSink struct {
	mu      sync.Mutex
	records []ArchiveRecord
	full    bool
}

func (s *fakeSink) Enqueue(rec ArchiveRecord) bool {
	if s.full {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return true
}

// failingSubs fails every Upsert.
type failingSubs struct {
	repository.SubscriptionRepository
}

func (f failingSubs) Upsert(ctx context.Context, patch *models.SubscriptionPatch) (*models.Subscription, error) {
	return nil, errors.New("database is locked")
}
