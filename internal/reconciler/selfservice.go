package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classpace/entitlement-sync/internal/billing"
	"github.com/classpace/entitlement-sync/internal/directory"
	"github.com/classpace/entitlement-sync/internal/entitlement"
)

// Resume clears a pending cancellation on the principal's active billing
// subscription and returns the next renewal time (nil when the billing
// record carries none). Exactly one mutating billing call is made; callers
// must treat the operation as at-most-once and not retry blindly.
func (r *Reconciler) Resume(ctx context.Context, p directory.Principal) (*time.Time, error) {
	sub, cust, err := r.findSelfServiceSubscription(ctx, p, func(s billing.Subscription) bool {
		return s.CancelAtPeriodEnd
	}, ErrNothingToResume)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	updated, err := r.billing.SetCancelAtPeriodEnd(callCtx, sub.ID, false)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("clear pending cancellation: %w", err)
	}

	r.refreshRecord(p, cust, updated)

	log.Info().
		Str("user_id", p.ID).
		Str("subscription_id", updated.ID).
		Msg("Subscription resumed")
	return renewalTime(updated), nil
}

// Cancel schedules the principal's active subscription to end at the close
// of the current billing period and returns when access ends.
func (r *Reconciler) Cancel(ctx context.Context, p directory.Principal) (*time.Time, error) {
	sub, cust, err := r.findSelfServiceSubscription(ctx, p, func(s billing.Subscription) bool {
		return !s.CancelAtPeriodEnd
	}, ErrNothingToCancel)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	updated, err := r.billing.SetCancelAtPeriodEnd(callCtx, sub.ID, true)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("schedule cancellation: %w", err)
	}

	r.refreshRecord(p, cust, updated)

	log.Info().
		Str("user_id", p.ID).
		Str("subscription_id", updated.ID).
		Msg("Subscription cancellation scheduled")
	return renewalTime(updated), nil
}

// findSelfServiceSubscription resolves the caller's billing customer by
// email and selects the first eligible subscription matching flagMatch.
// Unlike batch mode, any uncertainty aborts the request.
func (r *Reconciler) findSelfServiceSubscription(ctx context.Context, p directory.Principal, flagMatch func(billing.Subscription) bool, noMatch error) (*billing.Subscription, *billing.Customer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	cust, err := r.billing.FindCustomerByEmail(callCtx, p.Email)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("look up billing customer: %w", err)
	}
	if cust == nil {
		return nil, nil, ErrNoBillingCustomer
	}

	callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
	subs, err := r.billing.ListSubscriptions(callCtx, cust.ID, selfServiceSubscriptionLimit)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("list subscriptions: %w", err)
	}

	for i := range subs {
		if entitlement.EligibleStatus(subs[i].Status) && flagMatch(subs[i]) {
			return &subs[i], cust, nil
		}
	}
	return nil, nil, noMatch
}

// refreshRecord keeps the entitlement row in step after a self-service
// change. The subscription is still eligible either way (a scheduled
// cancellation stays active until period end), so the write is permitted.
// Failure is logged, not surfaced: billing already accepted the change and
// the next batch run repairs the row.
func (r *Reconciler) refreshRecord(p directory.Principal, cust *billing.Customer, sub *billing.Subscription) {
	if sub == nil || cust == nil {
		return
	}
	rec := &entitlement.Record{
		UserID:               p.ID,
		Tier:                 r.tiers.DeriveTier(sub.ProductID),
		Status:               entitlement.StatusActive,
		StripeCustomerID:     cust.ID,
		StripeSubscriptionID: sub.ID,
		CurrentPeriodEnd:     entitlement.PeriodEnd(sub.CurrentPeriodEnd, sub.CancelAt, r.now()),
	}
	if err := r.store.Upsert(rec); err != nil {
		log.Warn().Err(err).Str("user_id", p.ID).Msg("Entitlement refresh after self-service change failed")
	}
}

func renewalTime(sub *billing.Subscription) *time.Time {
	if sub == nil {
		return nil
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		return &t
	}
	if sub.CancelAt > 0 {
		t := time.Unix(sub.CancelAt, 0).UTC()
		return &t
	}
	return nil
}
