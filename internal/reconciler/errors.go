package reconciler

import "errors"

var (
	// ErrNoBillingCustomer means no billing customer matched the principal.
	ErrNoBillingCustomer = errors.New("no billing customer found")

	// ErrNothingToResume means no eligible subscription has a pending
	// cancellation to clear.
	ErrNothingToResume = errors.New("no subscription with a pending cancellation")

	// ErrNothingToCancel means no eligible subscription is available to
	// schedule a cancellation on.
	ErrNothingToCancel = errors.New("no active subscription to cancel")
)
