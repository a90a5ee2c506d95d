package reconciler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/classpace/entitlement-sync/internal/billing"
	"github.com/classpace/entitlement-sync/internal/entitlement"
)

func subscriptionEvent(t *testing.T, payload string) *billing.SubscriptionEvent {
	t.Helper()
	var ev billing.SubscriptionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return &ev
}

func TestApplySubscriptionEvent_WithUserMetadata(t *testing.T) {
	r, st := newTestReconciler(t, &fakeDirectory{}, &fakeBilling{})

	ev := subscriptionEvent(t, `{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"items": {"data": [{"current_period_end": 1780000000, "price": {"id": "price_1", "product": "prod_student"}}]},
		"metadata": {"user_id": "u1"}
	}`)

	if err := r.ApplySubscriptionEvent(ev); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}

	rec, _ := st.Get("u1")
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Tier != entitlement.TierStudentPremium || rec.StripeCustomerID != "cus_1" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.CurrentPeriodEnd.Equal(time.Unix(1780000000, 0).UTC()) {
		t.Errorf("period end = %v", rec.CurrentPeriodEnd)
	}
}

func TestApplySubscriptionEvent_ResolvesByCustomerID(t *testing.T) {
	r, st := newTestReconciler(t, &fakeDirectory{}, &fakeBilling{})

	seed := &entitlement.Record{
		UserID:           "u1",
		Tier:             entitlement.TierTeacherPremium,
		Status:           entitlement.StatusActive,
		StripeCustomerID: "cus_1",
		CurrentPeriodEnd: time.Unix(1760000000, 0).UTC(),
	}
	if err := st.Upsert(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := subscriptionEvent(t, `{
		"id": "sub_new",
		"customer": "cus_1",
		"status": "trialing",
		"items": {"data": [{"current_period_end": 1785000000, "price": {"product": {"id": "prod_teacher"}}}]}
	}`)

	if err := r.ApplySubscriptionEvent(ev); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}

	rec, _ := st.Get("u1")
	if rec == nil || rec.StripeSubscriptionID != "sub_new" {
		t.Errorf("record = %+v, want sub_new via customer lookup", rec)
	}
}

func TestApplySubscriptionEvent_UnknownPrincipalIgnored(t *testing.T) {
	r, st := newTestReconciler(t, &fakeDirectory{}, &fakeBilling{})

	ev := subscriptionEvent(t, `{
		"id": "sub_1",
		"customer": "cus_unknown",
		"status": "active",
		"items": {"data": [{"price": {"product": "prod_teacher"}}]}
	}`)

	if err := r.ApplySubscriptionEvent(ev); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}
	if n, _ := st.Count(); n != 0 {
		t.Errorf("store has %d rows, want 0 for unknown principal", n)
	}
}

func TestApplySubscriptionEvent_IneligibleStatusLeavesRow(t *testing.T) {
	r, st := newTestReconciler(t, &fakeDirectory{}, &fakeBilling{})

	seed := &entitlement.Record{
		UserID:               "u1",
		Tier:                 entitlement.TierTeacherPremium,
		Status:               entitlement.StatusActive,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_old",
		CurrentPeriodEnd:     time.Unix(1760000000, 0).UTC(),
	}
	if err := st.Upsert(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := subscriptionEvent(t, `{
		"id": "sub_old",
		"customer": "cus_1",
		"status": "canceled",
		"metadata": {"user_id": "u1"}
	}`)

	if err := r.ApplySubscriptionEvent(ev); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}

	rec, _ := st.Get("u1")
	if rec == nil || rec.Status != entitlement.StatusActive || rec.StripeSubscriptionID != "sub_old" {
		t.Errorf("ineligible event must leave the row untouched, got %+v", rec)
	}
}

func TestApplySubscriptionEvent_MissingCustomerIgnored(t *testing.T) {
	r, st := newTestReconciler(t, &fakeDirectory{}, &fakeBilling{})

	ev := subscriptionEvent(t, `{"id": "sub_1", "status": "active"}`)
	if err := r.ApplySubscriptionEvent(ev); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}
	if n, _ := st.Count(); n != 0 {
		t.Errorf("store has %d rows, want 0", n)
	}
}
