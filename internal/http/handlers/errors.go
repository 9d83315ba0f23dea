package handlers

import (
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/payments"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// billingError maps a billing service error to a huma status error.
// Unexpected errors are logged and reported without internal detail.
func billingError(logger *slog.Logger, action string, err error) error {
	switch {
	case errors.Is(err, service.ErrNoCustomer):
		return huma.Error404NotFound("no billing customer found")
	case errors.Is(err, service.ErrNoSubscription):
		return huma.Error404NotFound("no subscription found")
	case errors.Is(err, service.ErrUserNotResolved):
		return huma.Error404NotFound("no user is associated with this customer")
	case errors.Is(err, service.ErrSubscriptionMismatch):
		return huma.Error403Forbidden("subscription belongs to another user")
	case errors.Is(err, service.ErrInvalidPrice):
		return huma.Error400BadRequest("invalid price")
	case errors.Is(err, payments.ErrNotConfigured):
		return huma.Error503ServiceUnavailable("billing is not configured")
	case errors.Is(err, payments.ErrUnavailable):
		return huma.Error503ServiceUnavailable("payment processor temporarily unavailable")
	}
	logger.Error("billing request failed", "action", action, "error", err)
	return huma.Error500InternalServerError("failed to " + action)
}
