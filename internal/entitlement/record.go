package entitlement

import (
	"strings"
	"time"
)

// StatusActive is the status written on every successful reconciliation.
// Batch sync only ever persists rows for eligible subscriptions, so the
// stored status is unconditionally "active".
const StatusActive = "active"

// Record is one row of the entitlement store, keyed by user ID. Rows are
// created on first successful reconciliation and overwritten in place on
// every later run; the reconciler never deletes them.
type Record struct {
	UserID               string    `json:"user_id"`
	Tier                 Tier      `json:"tier"`
	Status               string    `json:"status"`
	StripeCustomerID     string    `json:"stripe_customer_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// EligibleStatus reports whether a billing subscription status grants an
// entitlement. Only active and trialing subscriptions qualify.
func EligibleStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return true
	default:
		return false
	}
}

// fallbackPeriod is assumed when the billing record carries no period end at
// all. Callers re-run reconciliation well inside this window, so the
// approximation is never live for more than one sync interval.
const fallbackPeriod = 30 * 24 * time.Hour

// PeriodEnd derives the entitlement expiry from a subscription's timestamps:
// the period end if present, else the scheduled cancellation time, else
// now + 30 days.
func PeriodEnd(currentPeriodEnd, cancelAt int64, now time.Time) time.Time {
	if currentPeriodEnd > 0 {
		return time.Unix(currentPeriodEnd, 0).UTC()
	}
	if cancelAt > 0 {
		return time.Unix(cancelAt, 0).UTC()
	}
	return now.UTC().Add(fallbackPeriod)
}
