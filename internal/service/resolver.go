package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
)

// userResolver associates processor objects with user IDs.
type userResolver struct {
	subs    repository.SubscriptionRepository
	gateway payments.Gateway
}

// resolve tries, in order: object metadata, the row holding the subscription id,
// the row holding the customer id, then the customer's metadata at the processor.
func (r *userResolver) resolve(ctx context.Context, metadata map[string]string, subscriptionID, customerID string) (string, error) {
	if id := metadata[payments.MetadataUserID]; id != "" {
		return id, nil
	}

	if subscriptionID != "" {
		row, err := r.subs.GetByStripeSubscriptionID(ctx, subscriptionID)
		if err != nil {
			return "", fmt.Errorf("failed to look up subscription %s: %w", subscriptionID, err)
		}
		if row != nil {
			return row.UserID, nil
		}
	}

	if customerID == "" {
		return "", ErrUserNotResolved
	}

	row, err := r.subs.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to look up customer %s: %w", customerID, err)
	}
	if row != nil {
		return row.UserID, nil
	}

	cust, err := r.gateway.GetCustomer(ctx, customerID)
	switch {
	case errors.Is(err, payments.ErrNotFound), errors.Is(err, payments.ErrNotConfigured):
		return "", ErrUserNotResolved
	case err != nil:
		return "", err
	}
	if id := cust.UserID(); id != "" {
		return id, nil
	}
	return "", ErrUserNotResolved
}
