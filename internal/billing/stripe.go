package billing

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// defaultMetadataUserIDKey is the customer metadata tag carrying the internal
// principal id, used as the secondary lookup when the email match misses.
const defaultMetadataUserIDKey = "user_id"

// StripeClient implements Client against the Stripe API. The API key is
// injected at construction, never compiled in.
type StripeClient struct {
	metadataUserIDKey string
}

// NewStripeClient configures the Stripe SDK with the given secret key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = strings.TrimSpace(apiKey)
	return &StripeClient{metadataUserIDKey: defaultMetadataUserIDKey}
}

// FindCustomerByEmail returns the first Stripe customer with the given email.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		return fromStripeCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list customers by email: %w", err)
	}
	return nil, nil
}

// FindCustomerByUserID searches customers tagged with the principal id in
// their metadata.
func (c *StripeClient) FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}

	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: metadataSearchQuery(c.metadataUserIDKey, userID),
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.Search(params)
	for iter.Next() {
		return fromStripeCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search customers by user id: %w", err)
	}
	return nil, nil
}

// ListSubscriptions returns up to limit subscriptions for a customer across
// all statuses, in Stripe's returned order.
func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var subs []Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, fromStripeSubscription(iter.Subscription()))
		if len(subs) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// SetCancelAtPeriodEnd updates the subscription's pending-cancellation flag.
func (c *StripeClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("missing subscription id")
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	updated := fromStripeSubscription(sub)
	return &updated, nil
}

func fromStripeCustomer(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	return &Customer{ID: c.ID, Email: c.Email}
}

func fromStripeSubscription(s *stripe.Subscription) Subscription {
	if s == nil {
		return Subscription{}
	}
	sub := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CancelAt:          s.CancelAt,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item != nil {
			sub.CurrentPeriodEnd = item.CurrentPeriodEnd
			if item.Price != nil {
				sub.PriceID = item.Price.ID
				if item.Price.Product != nil {
					sub.ProductID = item.Price.Product.ID
				}
			}
		}
	}
	return sub
}

// metadataSearchQuery builds a Stripe search expression for a metadata tag,
// escaping quotes and backslashes in the value.
func metadataSearchQuery(key, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return fmt.Sprintf("metadata['%s']:'%s'", key, escaped)
}
