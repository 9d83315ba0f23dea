package service

import "errors"

var (
	// ErrUserNotResolved means no user could be associated with a processor object.
	ErrUserNotResolved = errors.New("user not resolved")
	// ErrMalformedEvent means a verified event's object could not be interpreted.
	ErrMalformedEvent = errors.New("malformed event object")

	ErrNoCustomer           = errors.New("no billing customer")
	ErrNoSubscription       = errors.New("no subscription found")
	ErrSubscriptionMismatch = errors.New("subscription belongs to another user")
	ErrInvalidPrice         = errors.New("invalid price")
)
