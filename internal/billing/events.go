package billing

import (
	"encoding/json"
	"strings"
)

// ProductRef is a price's product reference as it appears on the wire:
// either a bare string id or an expanded {"id": ...} object. Both forms
// are accepted.
type ProductRef struct {
	ID string
}

func (p *ProductRef) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		p.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &p.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ID = obj.ID
	return nil
}

func (p ProductRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ID)
}

// SubscriptionEvent is a minimal representation of a Stripe subscription
// webhook payload.
type SubscriptionEvent struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CancelAt          int64  `json:"cancel_at"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID      string     `json:"id"`
				Product ProductRef `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription converts the event payload to the domain Subscription. Older
// API versions carry current_period_end on the subscription, newer ones on
// the line item; either is accepted.
func (e *SubscriptionEvent) Subscription() Subscription {
	sub := Subscription{
		ID:                e.ID,
		CustomerID:        strings.TrimSpace(e.Customer),
		Status:            e.Status,
		CancelAtPeriodEnd: e.CancelAtPeriodEnd,
		CancelAt:          e.CancelAt,
		CurrentPeriodEnd:  e.CurrentPeriodEnd,
	}
	if len(e.Items.Data) > 0 {
		item := e.Items.Data[0]
		if sub.CurrentPeriodEnd == 0 {
			sub.CurrentPeriodEnd = item.CurrentPeriodEnd
		}
		sub.PriceID = strings.TrimSpace(item.Price.ID)
		sub.ProductID = strings.TrimSpace(item.Price.Product.ID)
	}
	return sub
}

// UserID returns the principal id tagged on the subscription metadata, if any.
func (e *SubscriptionEvent) UserID() string {
	if e.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(e.Metadata["user_id"])
}
