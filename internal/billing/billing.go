package billing

import "context"

// Customer is the minimal billing-system customer view the reconciler needs.
type Customer struct {
	ID    string
	Email string
}

// Subscription is the minimal billing-system subscription view. ProductID
// and PriceID come from the subscription's single line item.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CancelAt          int64 // epoch seconds, 0 when unset
	CurrentPeriodEnd  int64 // epoch seconds, 0 when unset
	ProductID         string
	PriceID           string
}

// Client is the read/update capability the reconciler consumes from the
// billing system. Implementations must be safe for sequential reuse; the
// batch reconciler issues one call at a time.
type Client interface {
	// FindCustomerByEmail returns the first customer matching email, or nil
	// if none match. At most one result is requested; if the billing system
	// holds several customers for the email, the first wins.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// FindCustomerByUserID searches customers whose metadata tags the given
	// principal id. Secondary lookup used when the email match misses.
	FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error)

	// ListSubscriptions returns up to limit subscriptions for the customer,
	// all statuses, in the order the billing system returns them. No recency
	// ordering is imposed beyond that.
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error)

	// SetCancelAtPeriodEnd flips the subscription's pending-cancellation flag
	// and returns the updated subscription. Exactly one mutating call.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
}
