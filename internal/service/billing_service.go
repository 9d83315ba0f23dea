package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
)

// BillingService handles checkout, portal, manual syncs and catalog reads.
type BillingService struct {
	subs      repository.SubscriptionRepository
	catalog   repository.CatalogRepository
	gateway   payments.Gateway
	resolver  *userResolver
	cache     CacheInvalidator
	appOrigin string
	logger    *slog.Logger
}

// NewBillingService creates a new billing service. cache may be nil.
func NewBillingService(repos *repository.Repositories, gateway payments.Gateway, cache CacheInvalidator, appOrigin string, logger *slog.Logger) *BillingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingService{
		subs:      repos.Subscription,
		catalog:   repos.Catalog,
		gateway:   gateway,
		resolver:  &userResolver{subs: repos.Subscription, gateway: gateway},
		cache:     cache,
		appOrigin: appOrigin,
		logger:    logger.With("component", "billing"),
	}
}

// GetSubscription returns the stored record for a user, or nil.
func (s *BillingService) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.subs.GetByUserID(ctx, userID)
}

// CheckoutResult is a created checkout session.
type CheckoutResult struct {
	SessionID string
	URL       string
}

// Checkout creates a subscription-mode checkout session, creating the customer on first use.
func (s *BillingService) Checkout(ctx context.Context, userID, email, priceID string) (*CheckoutResult, error) {
	if priceID == "" {
		return nil, ErrInvalidPrice
	}
	if err := s.checkPrice(ctx, priceID); err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     userID,
		SuccessURL: s.appOrigin + "/account?success=true",
		CancelURL:  s.appOrigin + "/pricing?canceled=true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session created", "user_id", userID, "session_id", session.ID, "price_id", priceID)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// Portal returns a billing portal URL for the user's customer.
func (s *BillingService) Portal(ctx context.Context, userID string) (string, error) {
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if row == nil || row.StripeCustomerID == nil {
		return "", ErrNoCustomer
	}

	url, err := s.gateway.CreatePortalSession(ctx, *row.StripeCustomerID, s.appOrigin+"/account")
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return url, nil
}

// SyncAfterCheckout pulls the customer's active subscription right after checkout returns,
// so the user does not wait on webhook delivery.
func (s *BillingService) SyncAfterCheckout(ctx context.Context, userID string) (*models.Subscription, error) {
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.StripeCustomerID == nil {
		return nil, ErrNoCustomer
	}

	subs, err := s.gateway.ListSubscriptions(ctx, *row.StripeCustomerID, "active", 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNoSubscription
	}
	return s.apply(ctx, userID, subs[0])
}

// SyncSubscription refreshes a user's record from the processor.
// With a subscription id that subscription is used and must belong to the user;
// otherwise the best of the customer's subscriptions is chosen.
func (s *BillingService) SyncSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID != "" {
		sub, err := s.gateway.GetSubscription(ctx, subscriptionID)
		if errors.Is(err, payments.ErrNotFound) {
			return nil, ErrNoSubscription
		}
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
		}
		owner, err := s.resolver.resolve(ctx, sub.Metadata, sub.ID, sub.CustomerID)
		if err != nil && !errors.Is(err, ErrUserNotResolved) {
			return nil, err
		}
		if owner != "" && owner != userID {
			return nil, ErrSubscriptionMismatch
		}
		return s.apply(ctx, userID, sub)
	}

	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.StripeCustomerID == nil {
		return nil, ErrNoCustomer
	}
	return s.syncCustomer(ctx, userID, *row.StripeCustomerID)
}

// AdminSyncByEmail syncs the user owning the processor customer with this email.
func (s *BillingService) AdminSyncByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	cust, err := s.gateway.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	if cust == nil {
		return nil, ErrNoCustomer
	}

	userID := cust.UserID()
	if userID == "" {
		row, err := s.subs.GetByStripeCustomerID(ctx, cust.ID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, ErrUserNotResolved
		}
		userID = row.UserID
	}

	if _, err := s.subs.EnsureCustomer(ctx, userID, cust.ID); err != nil {
		return nil, err
	}
	return s.syncCustomer(ctx, userID, cust.ID)
}

// AdminSyncBySubscriptionID syncs a single subscription for whichever user owns it.
func (s *BillingService) AdminSyncBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, payments.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}

	userID, err := s.resolver.resolve(ctx, sub.Metadata, sub.ID, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, sub)
}

// ResyncStale refreshes active/trialing rows whose period ended more than grace ago,
// which usually means a renewal webhook was missed. Returns the number of rows refreshed.
func (s *BillingService) ResyncStale(ctx context.Context, grace time.Duration) (int, error) {
	rows, err := s.subs.ListStaleEntitled(ctx, time.Now().Add(-grace), 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale subscriptions: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		sub, err := s.gateway.GetSubscription(ctx, *row.StripeSubscriptionID)
		if errors.Is(err, payments.ErrNotFound) {
			canceled := models.SubscriptionStatusCanceled
			_, err = s.subs.Upsert(ctx, &models.SubscriptionPatch{UserID: row.UserID, Status: &canceled})
			s.invalidate(row.UserID)
		} else if err == nil {
			_, err = s.apply(ctx, row.UserID, sub)
		}
		if err != nil {
			s.logger.Warn("failed to resync subscription", "user_id", row.UserID, "error", err)
			errs = append(errs, err)
			continue
		}
		refreshed++
	}

	return refreshed, errors.Join(errs...)
}

// CancelForUser cancels the user's subscription at the processor. The resulting
// deletion webhook updates the stored record.
func (s *BillingService) CancelForUser(ctx context.Context, userID string) error {
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if row == nil || row.StripeSubscriptionID == nil {
		return nil
	}
	if row.Status == models.SubscriptionStatusCanceled || row.Status == models.SubscriptionStatusIncompleteExpired {
		return nil
	}

	err = s.gateway.CancelSubscription(ctx, *row.StripeSubscriptionID)
	if err != nil && !errors.Is(err, payments.ErrNotFound) {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	s.logger.Info("subscription cancel requested", "user_id", userID, "subscription_id", *row.StripeSubscriptionID)
	return nil
}

// UpdateCustomerEmail mirrors an email change to the user's processor customer.
func (s *BillingService) UpdateCustomerEmail(ctx context.Context, userID, email string) error {
	if email == "" {
		return nil
	}
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if row == nil || row.StripeCustomerID == nil {
		return nil
	}
	if err := s.gateway.UpdateCustomerEmail(ctx, *row.StripeCustomerID, email); err != nil {
		return fmt.Errorf("failed to update customer email: %w", err)
	}
	return nil
}

// ListProducts returns active products from the mirror, falling back to a live listing.
func (s *BillingService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	products, err := s.catalog.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		return products, nil
	}

	live, err := s.gateway.ListProducts(ctx)
	if errors.Is(err, payments.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products = productsFromGateway(live)
	if err := s.catalog.Replace(ctx, products); err != nil {
		s.logger.Warn("failed to store product catalog", "error", err)
	}
	return activeOnly(products), nil
}

// SyncCatalog mirrors the processor's active products. Returns the product count.
func (s *BillingService) SyncCatalog(ctx context.Context) (int, error) {
	live, err := s.gateway.ListProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list products: %w", err)
	}
	products := productsFromGateway(live)
	if err := s.catalog.Replace(ctx, products); err != nil {
		return 0, fmt.Errorf("failed to store product catalog: %w", err)
	}
	return len(products), nil
}

// ensureCustomer returns the user's customer id, reusing a processor customer with
// the same email when it is unclaimed, and records it on the user's row.
func (s *BillingService) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if row != nil && row.StripeCustomerID != nil {
		return *row.StripeCustomerID, nil
	}

	var cust *payments.Customer
	if email != "" {
		found, err := s.gateway.FindCustomerByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("failed to find customer: %w", err)
		}
		switch {
		case found == nil:
		case found.UserID() == userID:
			cust = found
		case found.UserID() == "":
			if err := s.gateway.SetCustomerUserID(ctx, found.ID, userID); err != nil {
				return "", fmt.Errorf("failed to claim customer: %w", err)
			}
			cust = found
		}
	}
	if cust == nil {
		cust, err = s.gateway.CreateCustomer(ctx, email, userID)
		if err != nil {
			return "", fmt.Errorf("failed to create customer: %w", err)
		}
	}

	row, err = s.subs.EnsureCustomer(ctx, userID, cust.ID)
	if err != nil {
		return "", err
	}
	return *row.StripeCustomerID, nil
}

func (s *BillingService) checkPrice(ctx context.Context, priceID string) error {
	products, err := s.catalog.ListActive(ctx)
	if err != nil || len(products) == 0 {
		// without a mirror the processor validates the price
		return nil
	}
	for _, p := range products {
		for _, price := range p.Prices {
			if price.StripePriceID == priceID {
				return nil
			}
		}
	}
	return ErrInvalidPrice
}

func (s *BillingService) syncCustomer(ctx context.Context, userID, customerID string) (*models.Subscription, error) {
	subs, err := s.gateway.ListSubscriptions(ctx, customerID, "all", 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	best := pickSubscription(subs)
	if best == nil {
		return nil, ErrNoSubscription
	}
	return s.apply(ctx, userID, best)
}

func (s *BillingService) apply(ctx context.Context, userID string, sub *payments.Subscription) (*models.Subscription, error) {
	row, err := s.subs.Upsert(ctx, patchFromSubscription(userID, sub))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	s.invalidate(userID)
	return row, nil
}

func (s *BillingService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

// pickSubscription prefers active/trialing subscriptions, then the latest period end.
func pickSubscription(subs []*payments.Subscription) *payments.Subscription {
	if len(subs) == 0 {
		return nil
	}
	sorted := make([]*payments.Subscription, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ei := models.SubscriptionStatus(sorted[i].Status).Entitled()
		ej := models.SubscriptionStatus(sorted[j].Status).Entitled()
		if ei != ej {
			return ei
		}
		return periodEnd(sorted[i]).After(periodEnd(sorted[j]))
	})
	return sorted[0]
}

func periodEnd(s *payments.Subscription) time.Time {
	if s.CurrentPeriodEnd == nil {
		return time.Time{}
	}
	return *s.CurrentPeriodEnd
}

func productsFromGateway(live []*payments.Product) []*models.Product {
	out := make([]*models.Product, 0, len(live))
	for _, p := range live {
		product := &models.Product{
			StripeProductID: p.ID,
			Name:            p.Name,
			Description:     p.Description,
			Active:          p.Active,
			DefaultPriceID:  p.DefaultPriceID,
		}
		for _, price := range p.Prices {
			product.Prices = append(product.Prices, &models.Price{
				StripePriceID:   price.ID,
				StripeProductID: p.ID,
				Currency:        price.Currency,
				UnitAmount:      price.UnitAmount,
				Type:            price.Type,
				Interval:        price.Interval,
				IntervalCount:   price.IntervalCount,
				Active:          price.Active,
			})
		}
		out = append(out, product)
	}
	return out
}

func activeOnly(products []*models.Product) []*models.Product {
	out := products[:0:0]
	for _, p := range products {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}
