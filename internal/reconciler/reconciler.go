package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classpace/entitlement-sync/internal/billing"
	"github.com/classpace/entitlement-sync/internal/directory"
	"github.com/classpace/entitlement-sync/internal/entitlement"
	"github.com/classpace/entitlement-sync/internal/syncmetrics"
)

const (
	// batchSubscriptionLimit bounds the billing subscriptions fetched per
	// principal during batch sync.
	batchSubscriptionLimit = 5

	// selfServiceSubscriptionLimit bounds the fetch for resume/cancel.
	selfServiceSubscriptionLimit = 10
)

// Store is the entitlement persistence the reconciler writes to.
// Implemented by store.EntitlementStore.
type Store interface {
	Upsert(rec *entitlement.Record) error
	Get(userID string) (*entitlement.Record, error)
	GetByCustomerID(customerID string) (*entitlement.Record, error)
	Count() (int, error)
}

// Reconciler maps external billing state onto internal entitlement state.
// One rule set serves both the batch scan and the per-principal self-service
// operations.
type Reconciler struct {
	directory   directory.Client
	billing     billing.Client
	store       Store
	tiers       entitlement.TierTable
	callTimeout time.Duration
	now         func() time.Time
}

// New creates a Reconciler.
func New(dir directory.Client, bill billing.Client, store Store, tiers entitlement.TierTable, callTimeout time.Duration) *Reconciler {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Reconciler{
		directory:   dir,
		billing:     bill,
		store:       store,
		tiers:       tiers,
		callTimeout: callTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Result summarizes a batch run. Partial success is normal: principals with
// no billing customer or no eligible subscription are skipped, not failed.
type Result struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// RunBatch scans every principal in the directory and synchronizes each
// one's entitlement record from billing state. Principals are processed
// sequentially, one at a time; the billing system imposes request-rate
// quotas and sequential iteration stays under them without an explicit
// limiter. A per-principal failure is counted and skipped, never fatal.
// Re-running with unchanged billing state is idempotent.
func (r *Reconciler) RunBatch(ctx context.Context) (Result, error) {
	start := r.now()
	var res Result

	principals, err := r.directory.ListPrincipals(ctx)
	if err != nil {
		syncmetrics.SyncRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}

	for _, p := range principals {
		if err := ctx.Err(); err != nil {
			syncmetrics.SyncRunsTotal.WithLabelValues("cancelled").Inc()
			return res, err
		}
		res.Processed++

		switch outcome := r.reconcilePrincipal(ctx, p); outcome {
		case outcomeUpdated:
			res.Updated++
			syncmetrics.PrincipalsTotal.WithLabelValues("updated").Inc()
		case outcomeSkipped:
			res.Skipped++
			syncmetrics.PrincipalsTotal.WithLabelValues("skipped").Inc()
		case outcomeError:
			res.Errors++
			syncmetrics.PrincipalsTotal.WithLabelValues("error").Inc()
		}
	}

	if n, err := r.store.Count(); err == nil {
		syncmetrics.EntitlementRecords.Set(float64(n))
	}

	syncmetrics.SyncRunsTotal.WithLabelValues("success").Inc()
	syncmetrics.SyncDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Int("processed", res.Processed).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("Batch reconciliation complete")
	return res, nil
}

type principalOutcome int

const (
	outcomeUpdated principalOutcome = iota
	outcomeSkipped
	outcomeError
)

func (r *Reconciler) reconcilePrincipal(ctx context.Context, p directory.Principal) principalOutcome {
	cust, err := r.resolveCustomer(ctx, p)
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.ID).Msg("Billing customer lookup failed, skipping principal")
		return outcomeError
	}
	if cust == nil {
		return outcomeSkipped
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	subs, err := r.billing.ListSubscriptions(callCtx, cust.ID, batchSubscriptionLimit)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.ID).Str("customer_id", cust.ID).
			Msg("Subscription listing failed, skipping principal")
		return outcomeError
	}

	sub := firstEligible(subs)
	if sub == nil {
		// No eligible subscription: leave any existing record untouched.
		return outcomeSkipped
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
		log.Error().Err(err).Str("user_id", p.ID).Msg("Entitlement upsert failed, skipping principal")
		return outcomeError
	}

	log.Debug().
		Str("user_id", p.ID).
		Str("customer_id", cust.ID).
		Str("subscription_id", sub.ID).
		Str("tier", string(rec.Tier)).
		Time("current_period_end", rec.CurrentPeriodEnd).
		Msg("Entitlement reconciled")
	return outcomeUpdated
}

// resolveCustomer looks the principal up in the billing system: by email
// first, then by the metadata tag carrying the principal id. A nil result
// with nil error means no customer exists.
func (r *Reconciler) resolveCustomer(ctx context.Context, p directory.Principal) (*billing.Customer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	cust, err := r.billing.FindCustomerByEmail(callCtx, p.Email)
	cancel()
	if err != nil {
		return nil, err
	}
	if cust != nil {
		return cust, nil
	}

	callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
	cust, err = r.billing.FindCustomerByUserID(callCtx, p.ID)
	cancel()
	if err != nil {
		return nil, err
	}
	return cust, nil
}

// firstEligible returns the first subscription in list order whose status is
// active or trialing. First match wins; no recency sort is applied beyond
// the order the billing system returned.
func firstEligible(subs []billing.Subscription) *billing.Subscription {
	for i := range subs {
		if entitlement.EligibleStatus(subs[i].Status) {
			return &subs[i]
		}
	}
	return nil
}

// RunPeriodic executes RunBatch on the given interval until ctx is
// cancelled. Runs are serialized by construction; concurrent batch runs are
// not a supported configuration.
func (r *Reconciler) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("Background reconciliation disabled")
		return
	}
	log.Info().Dur("interval", interval).Msg("Background reconciliation started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Background reconciliation stopped")
			return
		case <-ticker.C:
			if _, err := r.RunBatch(ctx); err != nil {
				log.Error().Err(err).Msg("Background reconciliation run failed")
			}
		}
	}
}
