package reconciler

import (
	"github.com/rs/zerolog/log"

	"github.com/classpace/entitlement-sync/internal/billing"
	"github.com/classpace/entitlement-sync/internal/entitlement"
)

// ApplySubscriptionEvent folds a Stripe subscription webhook event into the
// entitlement store. The principal is resolved from the subscription's
// user_id metadata tag, falling back to the existing row keyed by customer
// id. Events for unknown principals, and events whose status is not
// eligible, leave the store untouched: the webhook path follows the same
// non-downgrade policy as batch sync.
func (r *Reconciler) ApplySubscriptionEvent(ev *billing.SubscriptionEvent) error {
	if ev == nil {
		return nil
	}
	sub := ev.Subscription()
	if sub.CustomerID == "" {
		log.Warn().Str("subscription_id", sub.ID).Msg("Subscription event missing customer, ignored")
		return nil
	}

	userID := ev.UserID()
	if userID == "" {
		existing, err := r.store.GetByCustomerID(sub.CustomerID)
		if err != nil {
			return err
		}
		if existing == nil {
			log.Info().
				Str("customer_id", sub.CustomerID).
				Str("subscription_id", sub.ID).
				Msg("Subscription event for unknown principal, ignored")
			return nil
		}
		userID = existing.UserID
	}

	if !entitlement.EligibleStatus(sub.Status) {
		log.Info().
			Str("user_id", userID).
			Str("subscription_id", sub.ID).
			Str("status", sub.Status).
			Msg("Subscription event not eligible, entitlement left untouched")
		return nil
	}

	rec := &entitlement.Record{
		UserID:               userID,
		Tier:                 r.tiers.DeriveTier(sub.ProductID),
		Status:               entitlement.StatusActive,
		StripeCustomerID:     sub.CustomerID,
		StripeSubscriptionID: sub.ID,
		CurrentPeriodEnd:     entitlement.PeriodEnd(sub.CurrentPeriodEnd, sub.CancelAt, r.now()),
	}
	if err := r.store.Upsert(rec); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID).
		Str("subscription_id", sub.ID).
		Str("tier", string(rec.Tier)).
		Msg("Entitlement updated from subscription event")
	return nil
}
