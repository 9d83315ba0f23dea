// Package service contains the business logic layer.
// The UserID in services references Supabase auth user IDs (UUIDs).
package service

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/matchgenius-api/internal/auth"
	"github.com/jmylchreest/matchgenius-api/internal/config"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
	"github.com/jmylchreest/matchgenius-api/internal/version"
)

// Services holds all service instances.
type Services struct {
	Billing           *BillingService
	Reconciler        *Reconciler
	Storage           *StorageService
	Gateway           payments.Gateway
	Verifier          *payments.Verifier
	SubscriptionCache *auth.SubscriptionCache
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	if !cfg.StripeEnabled() {
		logger.Warn("no Stripe secret key configured - checkout, portal and sync will be unavailable")
	}
	gateway := payments.NewStripeGateway(payments.GatewayConfig{
		SecretKey:      cfg.StripeSecretKey,
		BreakerTimeout: cfg.StripeBreakerTimeout,
		AppVersion:     version.Get().Short(),
	}, logger)

	subCache := auth.NewSubscriptionCache(repos.Subscription.GetByUserID, cfg.SubscriptionCacheTTL, logger)

	return &Services{
		Billing:           NewBillingService(repos, gateway, subCache, cfg.AppOrigin, logger),
		Reconciler:        NewReconciler(repos.Subscription, gateway, subCache, logger),
		Storage:           storageSvc,
		Gateway:           gateway,
		Verifier:          payments.NewVerifier(cfg.StripeWebhookSecret),
		SubscriptionCache: subCache,
	}, nil
}

// Close releases background resources held by services.
func (s *Services) Close() {
	if s.SubscriptionCache != nil {
		s.SubscriptionCache.Stop()
	}
}
