package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/logging"
	"github.com/jmylchreest/matchgenius-api/internal/metrics"
	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
)

// EventKind groups processor event types by how they change the subscription record.
type EventKind int

const (
	KindIgnored EventKind = iota
	// KindCheckout writes the full subscription after a completed checkout.
	KindCheckout
	// KindSubscription writes the full subscription from the event object.
	KindSubscription
	// KindStatus sets a fixed status.
	KindStatus
	// KindRenewal refreshes the subscription after a cycle payment and marks it active.
	KindRenewal
)

func (k EventKind) String() string {
	switch k {
	case KindCheckout:
		return "checkout"
	case KindSubscription:
		return "subscription"
	case KindStatus:
		return "status"
	case KindRenewal:
		return "renewal"
	default:
		return "ignored"
	}
}

type objectType int

const (
	objectSubscription objectType = iota
	objectCheckoutSession
	objectInvoice
)

// Classification is the handling rule for one event type.
type Classification struct {
	Kind   EventKind
	Status models.SubscriptionStatus // Set for KindStatus and KindRenewal
	object objectType
}

var eventRules = map[string]Classification{
	"checkout.session.completed":    {Kind: KindCheckout, object: objectCheckoutSession},
	"customer.subscription.created": {Kind: KindSubscription, object: objectSubscription},
	"customer.subscription.updated": {Kind: KindSubscription, object: objectSubscription},
	"customer.subscription.deleted": {Kind: KindStatus, Status: models.SubscriptionStatusCanceled, object: objectSubscription},
	"customer.subscription.paused":  {Kind: KindStatus, Status: models.SubscriptionStatusPaused, object: objectSubscription},
	"customer.subscription.resumed": {Kind: KindStatus, Status: models.SubscriptionStatusActive, object: objectSubscription},
	"invoice.payment_succeeded":     {Kind: KindRenewal, Status: models.SubscriptionStatusActive, object: objectInvoice},
	"invoice.payment_failed":        {Kind: KindStatus, Status: models.SubscriptionStatusPastDue, object: objectInvoice},
}

// Classify returns the handling rule for an event type. Unknown types are KindIgnored.
func Classify(eventType string) Classification {
	if c, ok := eventRules[eventType]; ok {
		return c
	}
	return Classification{Kind: KindIgnored}
}

// HandledEventTypes lists the allow-listed event types.
func HandledEventTypes() []string {
	types := make([]string, 0, len(eventRules))
	for t := range eventRules {
		types = append(types, t)
	}
	return types
}

// CacheInvalidator drops cached subscription reads for a user.
type CacheInvalidator interface {
	Invalidate(userID string)
}

// ArchiveRecord is a reconciled event handed to the archive worker.
type ArchiveRecord struct {
	Event   models.WebhookEvent
	Payload []byte
}

// ArchiveSink accepts records without blocking; false means the record was dropped.
type ArchiveSink interface {
	Enqueue(rec ArchiveRecord) bool
}

// ReconcileResult describes what a delivery did.
type ReconcileResult struct {
	Outcome      models.WebhookOutcome
	Kind         EventKind
	UserID       string
	Subscription *models.Subscription
}

// Reconciler turns verified processor events into subscription upserts.
type Reconciler struct {
	subs     repository.SubscriptionRepository
	gateway  payments.Gateway
	resolver *userResolver
	cache    CacheInvalidator
	sink     ArchiveSink
	logger   *slog.Logger
}

// NewReconciler creates a reconciler. cache may be nil.
func NewReconciler(subs repository.SubscriptionRepository, gateway payments.Gateway, cache CacheInvalidator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		subs:     subs,
		gateway:  gateway,
		resolver: &userResolver{subs: subs, gateway: gateway},
		cache:    cache,
		logger:   logger.With("component", "reconciler"),
	}
}

// SetArchiveSink wires the archive worker. Without one nothing is archived.
func (r *Reconciler) SetArchiveSink(sink ArchiveSink) {
	r.sink = sink
}

// Reconcile applies one verified event. Ignored types return KindIgnored with no side effects.
// Errors wrapping ErrUserNotResolved or ErrMalformedEvent are permanent; anything else is retryable.
func (r *Reconciler) Reconcile(ctx context.Context, ev *payments.Event) (*ReconcileResult, error) {
	ctx = logging.WithEventID(ctx, ev.ID)
	logger := logging.FromContext(ctx, r.logger).With("type", ev.Type)

	rule := Classify(ev.Type)
	if rule.Kind == KindIgnored {
		logger.Debug("ignoring webhook event")
		metrics.WebhookEventsTotal.WithLabelValues("other", string(models.WebhookOutcomeIgnored)).Inc()
		return &ReconcileResult{Outcome: models.WebhookOutcomeIgnored, Kind: KindIgnored}, nil
	}

	patch, onlyFor, err := r.buildPatch(ctx, ev, rule)
	result := &ReconcileResult{Kind: rule.Kind}
	switch {
	case err != nil:
		result.Outcome = outcomeFor(err)
	case patch == nil:
		result.Outcome = models.WebhookOutcomeIgnored
	default:
		result.UserID = patch.UserID
		sub, applied, writeErr := r.write(ctx, patch, onlyFor)
		if writeErr != nil {
			err = fmt.Errorf("failed to upsert subscription: %w", writeErr)
			result.Outcome = models.WebhookOutcomeFailed
			break
		}
		if !applied {
			logger.Info("status event names a replaced subscription, leaving record unchanged",
				"subscription_id", onlyFor, "user_id", patch.UserID)
			result.Outcome = models.WebhookOutcomeIgnored
			break
		}
		result.Outcome = models.WebhookOutcomeApplied
		result.Subscription = sub
		if r.cache != nil {
			r.cache.Invalidate(patch.UserID)
		}
	}

	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, string(result.Outcome)).Inc()
	r.archive(ctx, ev, result, err)

	if err != nil {
		logger.Error("webhook event not applied", "kind", rule.Kind.String(), "outcome", result.Outcome, "error", err)
		return result, err
	}
	logger.Info("webhook event reconciled", "kind", rule.Kind.String(), "outcome", result.Outcome, "user_id", result.UserID)
	return result, nil
}

// write applies patch. A non-empty onlyFor makes it a status-only write that lands
// only while the user's record tracks that subscription.
func (r *Reconciler) write(ctx context.Context, patch *models.SubscriptionPatch, onlyFor string) (*models.Subscription, bool, error) {
	if onlyFor == "" {
		sub, err := r.subs.Upsert(ctx, patch)
		return sub, err == nil, err
	}
	return r.subs.SetStatusForSubscription(ctx, patch.UserID, onlyFor, patch.StripeCustomerID, *patch.Status)
}

// buildPatch returns a nil patch without error when the event is allow-listed but not applicable.
// For status-only events it also returns the subscription the status belongs to.
func (r *Reconciler) buildPatch(ctx context.Context, ev *payments.Event, rule Classification) (*models.SubscriptionPatch, string, error) {
	switch rule.object {
	case objectCheckoutSession:
		cs, err := payments.DecodeCheckoutSession(ev.Object)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if cs.Mode != "subscription" || cs.SubscriptionID == "" || cs.CustomerID == "" {
			return nil, "", nil
		}
		sub, err := r.gateway.GetSubscription(ctx, cs.SubscriptionID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to retrieve subscription %s: %w", cs.SubscriptionID, err)
		}
		userID := cs.Metadata[payments.MetadataUserID]
		if userID == "" {
			if userID, err = r.resolver.resolve(ctx, sub.Metadata, sub.ID, cs.CustomerID); err != nil {
				return nil, "", err
			}
		}
		patch := patchFromSubscription(userID, sub)
		patch.StripeCustomerID = &cs.CustomerID
		return patch, "", nil

	case objectSubscription:
		sub, err := payments.DecodeSubscription(ev.Object)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		userID, err := r.resolver.resolve(ctx, sub.Metadata, sub.ID, sub.CustomerID)
		if err != nil {
			return nil, "", err
		}
		if rule.Kind == KindStatus {
			status := rule.Status
			return &models.SubscriptionPatch{
				UserID:           userID,
				StripeCustomerID: nonEmpty(sub.CustomerID),
				Status:           &status,
			}, sub.ID, nil
		}
		return patchFromSubscription(userID, sub), "", nil

	case objectInvoice:
		in, err := payments.DecodeInvoice(ev.Object)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if in.SubscriptionID == "" {
			// one-off invoice, nothing to reconcile
			return nil, "", nil
		}

		if rule.Kind == KindRenewal {
			if in.BillingReason != "subscription_cycle" {
				return nil, "", nil
			}
			sub, err := r.gateway.GetSubscription(ctx, in.SubscriptionID)
			if err != nil {
				return nil, "", fmt.Errorf("failed to retrieve subscription %s: %w", in.SubscriptionID, err)
			}
			userID, err := r.resolver.resolve(ctx, sub.Metadata, sub.ID, in.CustomerID)
			if err != nil {
				return nil, "", err
			}
			patch := patchFromSubscription(userID, sub)
			status := rule.Status
			patch.Status = &status
			return patch, "", nil
		}

		userID, err := r.resolver.resolve(ctx, in.Metadata, in.SubscriptionID, in.CustomerID)
		if err != nil {
			return nil, "", err
		}
		status := rule.Status
		return &models.SubscriptionPatch{
			UserID:           userID,
			StripeCustomerID: nonEmpty(in.CustomerID),
			Status:           &status,
		}, in.SubscriptionID, nil
	}

	return nil, "", nil
}

func (r *Reconciler) archive(ctx context.Context, ev *payments.Event, result *ReconcileResult, procErr error) {
	if r.sink == nil {
		return
	}
	rec := ArchiveRecord{
		Event: models.WebhookEvent{
			ID:         ev.ID,
			Type:       ev.Type,
			Outcome:    result.Outcome,
			UserID:     result.UserID,
			LastSeenAt: time.Now().UTC(),
		},
		Payload: ev.Payload,
	}
	if procErr != nil {
		rec.Event.Error = logging.Truncate(procErr.Error(), 500)
	}
	if !r.sink.Enqueue(rec) {
		logging.FromContext(ctx, r.logger).Warn("archive queue full, dropping delivery record")
	}
}

// patchFromSubscription carries every field the processor subscription provides.
func patchFromSubscription(userID string, sub *payments.Subscription) *models.SubscriptionPatch {
	patch := &models.SubscriptionPatch{
		UserID:               userID,
		StripeCustomerID:     nonEmpty(sub.CustomerID),
		StripeSubscriptionID: nonEmpty(sub.ID),
		StripePriceID:        nonEmpty(sub.PriceID),
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
	}
	if status := models.SubscriptionStatus(sub.Status); status.Valid() {
		patch.Status = &status
	}
	return patch
}

func outcomeFor(err error) models.WebhookOutcome {
	switch {
	case errors.Is(err, ErrUserNotResolved):
		return models.WebhookOutcomeUnresolved
	case errors.Is(err, ErrMalformedEvent):
		return models.WebhookOutcomeMalformed
	default:
		return models.WebhookOutcomeFailed
	}
}

// IsPermanent reports whether a reconcile error should not be retried by the processor.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUserNotResolved) || errors.Is(err, ErrMalformedEvent)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
