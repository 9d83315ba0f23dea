// Package subclient is the client-side subscription cache. A Store fetches
// the caller's subscription from the API, memoizes it, and tells subscribers
// when it changes.
package subclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

const (
	// DefaultCooldown is the window within which non-forced refreshes are no-ops.
	DefaultCooldown = 30 * time.Second
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 5 * time.Second

	subscriptionPath       = "/api/v1/subscription"
	updateSubscriptionPath = "/api/v1/stripe/update-subscription"

	// FetchFailedMessage is shown to the user when a fetch fails.
	FetchFailedMessage = "Failed to load subscription data"
)

// ErrFetchFailed is returned when the API answered with an unexpected status
// or could not be reached. The last known value is kept.
var ErrFetchFailed = errors.New("subscription fetch failed")

// TokenSource returns the current session token. An empty token sends no
// Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// Notifier surfaces non-blocking messages to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }

// Config configures a Store.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      TokenSource
	Cooldown   time.Duration
	Timeout    time.Duration
	Notifier   Notifier
	Logger     *slog.Logger

	// Seed is a server-fetched value. When Seeded is true the store starts
	// with it and treats it as fresh, even if it is nil.
	Seed   *models.SubscriptionView
	Seeded bool
}

// State is a snapshot delivered to subscribers.
type State struct {
	Subscription *models.SubscriptionView
	Loading      bool
	Subscribed   bool
}

// Store memoizes the caller's subscription. At most one fetch is in flight.
type Store struct {
	baseURL  string
	client   *http.Client
	token    TokenSource
	cooldown time.Duration
	timeout  time.Duration
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	sub       *models.SubscriptionView
	loading   bool
	lastFetch time.Time
	listeners map[int]func(State)
	nextID    int

	inFlight   atomic.Bool
	generation atomic.Uint64
	closed     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Store.
func New(cfg Config) *Store {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Token == nil {
		cfg.Token = func(context.Context) (string, error) { return "", nil }
	}

	s := &Store{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    cfg.HTTPClient,
		token:     cfg.Token,
		cooldown:  cfg.Cooldown,
		timeout:   cfg.Timeout,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.With("component", "subscription-store"),
		now:       time.Now,
		loading:   !cfg.Seeded,
		listeners: make(map[int]func(State)),
	}
	if cfg.Seeded {
		s.sub = cfg.Seed
		s.lastFetch = s.now()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Subscription returns the cached record, or nil.
func (s *Store) Subscription() *models.SubscriptionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub
}

// IsLoading reports whether no value has been loaded yet or a fetch is running.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsSubscribed reports whether the cached record grants access now.
func (s *Store) IsSubscribed() bool {
	return models.IsEntitled(s.Subscription(), s.now())
}

// State returns a snapshot of the store.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		Subscription: s.sub,
		Loading:      s.loading,
		Subscribed:   models.IsEntitled(s.sub, s.now()),
	}
}

// Subscribe registers fn to receive every state change. The returned func unregisters it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close cancels any in-flight fetch and discards its result. Later refreshes are no-ops.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.generation.Add(1)
	s.cancel()

	s.mu.Lock()
	s.listeners = make(map[int]func(State))
	s.mu.Unlock()
}

// Refresh fetches the subscription unless a fetch is in flight or, when force
// is false, the last fetch started within the cooldown window.
//
// A 401 clears the record without error. A timeout leaves everything as is.
// Any other failure notifies the user, keeps the last value and returns ErrFetchFailed.
func (s *Store) Refresh(ctx context.Context, force bool) error {
	if s.closed.Load() {
		return nil
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("refresh dropped, fetch already in flight")
		return nil
	}
	defer s.inFlight.Store(false)

	gen := s.generation.Load()
	if !s.begin(force) {
		return nil
	}

	sub, status, err := s.fetch(ctx)

	if s.generation.Load() != gen {
		return nil
	}

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("subscription fetch timed out")
		s.update(func() { s.loading = false })
		return nil
	case err != nil && errors.Is(err, context.Canceled):
		s.update(func() { s.loading = false })
		return err
	case err != nil:
		s.logger.Warn("subscription fetch failed", "error", err)
		s.fail()
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	case status == http.StatusUnauthorized:
		s.update(func() {
			s.sub = nil
			s.loading = false
		})
		return nil
	case status != http.StatusOK:
		s.logger.Warn("subscription fetch failed", "status", status)
		s.fail()
		return fmt.Errorf("%w: status %d", ErrFetchFailed, status)
	}

	s.update(func() {
		s.sub = sub
		s.loading = false
	})
	return nil
}

// SyncAfterCheckout asks the API to refresh the caller's subscription from the
// processor, then force-refreshes the store.
func (s *Store) SyncAfterCheckout(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	req, err := s.newRequest(reqCtx, http.MethodPost, updateSubscriptionPath)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: sync returned status %d", ErrFetchFailed, resp.StatusCode)
	}
	return s.Refresh(ctx, true)
}

func (s *Store) fetch(ctx context.Context) (*models.SubscriptionView, int, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	req, err := s.newRequest(reqCtx, http.MethodGet, subscriptionPath)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	// The body is the record or the literal null.
	var sub *models.SubscriptionView
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, 0, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return sub, resp.StatusCode, nil
}

// requestContext bounds a request by the timeout and by Close.
func (s *Store) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

func (s *Store) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token, err := s.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// begin checks the cooldown and stamps the fetch start in one critical section.
// It returns false when a non-forced refresh falls inside the cooldown window.
func (s *Store) begin(force bool) bool {
	s.mu.Lock()
	now := s.now()
	if !force && !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < s.cooldown {
		s.mu.Unlock()
		return false
	}
	s.lastFetch = now
	s.loading = true
	state := s.stateLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return true
}

func (s *Store) fail() {
	s.update(func() { s.loading = false })
	if s.notifier != nil {
		s.notifier.Notify(FetchFailedMessage)
	}
}

// update applies fn under the lock and notifies subscribers outside it.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	state := s.stateLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (s *Store) listenersLocked() []func(State) {
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}
