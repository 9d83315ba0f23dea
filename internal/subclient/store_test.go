package subclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

const activeBody = `{"id":"row-1","userId":"user-1","stripeCustomerId":"cus_1","stripeSubscriptionId":"sub_1","stripePriceId":"price_1","stripeCurrentPeriodEnd":null,"status":"active","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}`

// apiServer serves the subscription endpoint with a configurable response.
type apiServer struct {
	*httptest.Server
	requests atomic.Int32
	status   atomic.Int32
	body     atomic.Value // string
	delay    atomic.Int64
	auth     atomic.Value // string
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.status.Store(http.StatusOK)
	s.body.Store(activeBody)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case subscriptionPath:
			s.requests.Add(1)
			s.auth.Store(r.Header.Get("Authorization"))
			if d := time.Duration(s.delay.Load()); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(s.status.Load()))
			_, _ = w.Write([]byte(s.body.Load().(string)))
		case updateSubscriptionPath:
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.body.Store(activeBody)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(activeBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestStore(srv *apiServer, notifier Notifier, mutate func(*Config)) *Store {
	cfg := Config{
		BaseURL:  srv.URL + "/",
		Token:    func(context.Context) (string, error) { return "tok", nil },
		Notifier: notifier,
		Logger:   slog.Default(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

// ========================================
// Fetch Tests
// ========================================

func TestRefresh_Success(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	if !s.IsLoading() {
		t.Error("unseeded store should start loading")
	}
	if err := s.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	sub := s.Subscription()
	if sub == nil || sub.UserID != "user-1" || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("Subscription() = %+v", sub)
	}
	if s.IsLoading() {
		t.Error("IsLoading() should be false after fetch")
	}
	if !s.IsSubscribed() {
		t.Error("IsSubscribed() should be true for an active subscription")
	}
	if got, _ := srv.auth.Load().(string); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRefresh_NullBody(t *testing.T) {
	srv := newAPIServer(t)
	srv.body.Store("null")
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	if err := s.Refresh(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if s.Subscription() != nil || s.IsSubscribed() {
		t.Error("null body should leave no subscription")
	}
}

func TestRefresh_CooldownCoalesces(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	ctx := context.Background()
	_ = s.Refresh(ctx, false)
	_ = s.Refresh(ctx, false)

	if n := srv.requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}

	_ = s.Refresh(ctx, true)
	if n := srv.requests.Load(); n != 2 {
		t.Errorf("forced refresh: requests = %d, want 2", n)
	}
}

func TestRefresh_CooldownExpires(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, func(c *Config) { c.Cooldown = time.Minute })
	defer s.Close()

	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Refresh(context.Background(), false)
	now = now.Add(61 * time.Second)
	_ = s.Refresh(context.Background(), false)

	if n := srv.requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestRefresh_ConcurrentCallsFetchOnce(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	// Callers that lose the in-flight race, or start after a fetch finished,
	// must still respect the cooldown.
	const callers = 64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = s.Refresh(context.Background(), false)
		}()
	}
	close(start)
	wg.Wait()

	if n := srv.requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestRefresh_Unauthorized(t *testing.T) {
	srv := newAPIServer(t)
	notifier := &recordingNotifier{}
	s := newTestStore(srv, notifier, nil)
	defer s.Close()

	_ = s.Refresh(context.Background(), false)
	if s.Subscription() == nil {
		t.Fatal("expected a subscription after first fetch")
	}

	srv.status.Store(http.StatusUnauthorized)
	srv.body.Store(`{"error":"unauthorized"}`)
	if err := s.Refresh(context.Background(), true); err != nil {
		t.Fatalf("401 should not be an error, got %v", err)
	}
	if s.Subscription() != nil {
		t.Error("401 should clear the subscription")
	}
	if notifier.count() != 0 {
		t.Error("401 should not notify")
	}
}

func TestRefresh_ServerErrorKeepsValue(t *testing.T) {
	srv := newAPIServer(t)
	notifier := &recordingNotifier{}
	s := newTestStore(srv, notifier, nil)
	defer s.Close()

	_ = s.Refresh(context.Background(), false)

	srv.status.Store(http.StatusInternalServerError)
	srv.body.Store(`{"error":"boom"}`)
	err := s.Refresh(context.Background(), true)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if sub := s.Subscription(); sub == nil || sub.UserID != "user-1" {
		t.Error("last known value should be kept")
	}
	if notifier.count() != 1 || notifier.messages[0] != FetchFailedMessage {
		t.Errorf("notifications = %v", notifier.messages)
	}
	if s.IsLoading() {
		t.Error("IsLoading() should be false after a failure")
	}
}

func TestRefresh_TimeoutIsNoUpdate(t *testing.T) {
	srv := newAPIServer(t)
	srv.delay.Store(int64(time.Second))
	notifier := &recordingNotifier{}
	s := newTestStore(srv, notifier, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	defer s.Close()

	if err := s.Refresh(context.Background(), false); err != nil {
		t.Fatalf("timeout should not be an error, got %v", err)
	}
	if s.Subscription() != nil {
		t.Error("timeout should not set a value")
	}
	if notifier.count() != 0 {
		t.Error("timeout should not notify")
	}
}

// ========================================
// Concurrency Tests
// ========================================

func TestRefresh_InFlightDropped(t *testing.T) {
	srv := newAPIServer(t)
	srv.delay.Store(int64(200 * time.Millisecond))
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background(), true) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.inFlight.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	if err := s.Refresh(context.Background(), true); err != nil {
		t.Errorf("dropped refresh error = %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("refresh during an in-flight fetch should return immediately")
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := srv.requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	srv := newAPIServer(t)
	srv.delay.Store(int64(500 * time.Millisecond))
	s := newTestStore(srv, nil, nil)

	var calls atomic.Int32
	s.Subscribe(func(State) { calls.Add(1) })

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background(), false) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.requests.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Close()

	if err := <-done; err != nil {
		t.Errorf("Refresh() after Close error = %v", err)
	}
	if s.Subscription() != nil {
		t.Error("result after Close should be discarded")
	}
	before := calls.Load()

	if err := s.Refresh(context.Background(), true); err != nil {
		t.Error(err)
	}
	if srv.requests.Load() != 1 {
		t.Error("Refresh after Close should not fetch")
	}
	if calls.Load() != before {
		t.Error("subscribers should not be called after Close")
	}
}

// ========================================
// Seed / Subscribe Tests
// ========================================

func TestSeeded_TreatedAsFresh(t *testing.T) {
	srv := newAPIServer(t)
	subID := "sub_seed"
	seed := &models.SubscriptionView{UserID: "user-1", StripeSubscriptionID: &subID, Status: models.SubscriptionStatusTrialing}
	s := newTestStore(srv, nil, func(c *Config) {
		c.Seed = seed
		c.Seeded = true
	})
	defer s.Close()

	if s.IsLoading() {
		t.Error("seeded store should not be loading")
	}
	if !s.IsSubscribed() {
		t.Error("trialing seed should be subscribed")
	}
	_ = s.Refresh(context.Background(), false)
	if n := srv.requests.Load(); n != 0 {
		t.Errorf("seeded store fetched %d times within cooldown", n)
	}
}

func TestSeeded_NilSeed(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, func(c *Config) { c.Seeded = true })
	defer s.Close()

	if s.IsLoading() || s.Subscription() != nil {
		t.Error("a nil seed is a valid fresh value")
	}
}

func TestSubscribe(t *testing.T) {
	srv := newAPIServer(t)
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	var mu sync.Mutex
	var states []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	})

	_ = s.Refresh(context.Background(), false)

	mu.Lock()
	if len(states) != 2 {
		t.Fatalf("states = %d, want 2 (loading, loaded)", len(states))
	}
	if !states[0].Loading || states[1].Loading || !states[1].Subscribed {
		t.Errorf("states = %+v", states)
	}
	mu.Unlock()

	unsubscribe()
	_ = s.Refresh(context.Background(), true)
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 {
		t.Errorf("states after unsubscribe = %d, want 2", len(states))
	}
}

func TestSyncAfterCheckout(t *testing.T) {
	srv := newAPIServer(t)
	srv.body.Store("null")
	s := newTestStore(srv, nil, nil)
	defer s.Close()

	_ = s.Refresh(context.Background(), false)
	if s.IsSubscribed() {
		t.Fatal("should not be subscribed before checkout")
	}

	if err := s.SyncAfterCheckout(context.Background()); err != nil {
		t.Fatalf("SyncAfterCheckout() error = %v", err)
	}
	if !s.IsSubscribed() {
		t.Error("should be subscribed after checkout sync")
	}
	if n := srv.requests.Load(); n != 2 {
		t.Errorf("subscription requests = %d, want 2", n)
	}
}

func TestTokenError(t *testing.T) {
	srv := newAPIServer(t)
	notifier := &recordingNotifier{}
	s := newTestStore(srv, notifier, func(c *Config) {
		c.Token = func(context.Context) (string, error) { return "", errors.New("no session") }
	})
	defer s.Close()

	if err := s.Refresh(context.Background(), false); !errors.Is(err, ErrFetchFailed) {
		t.Errorf("error = %v, want ErrFetchFailed", err)
	}
	if srv.requests.Load() != 0 {
		t.Error("no request should be sent without a token")
	}
}
