package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/classpace/entitlement-sync/internal/billing"
)

const testWebhookSecret = "whsec_test_secret"

type recordingApplier struct {
	events []*billing.SubscriptionEvent
	err    error
}

func (a *recordingApplier) ApplySubscriptionEvent(ev *billing.SubscriptionEvent) error {
	a.events = append(a.events, ev)
	return a.err
}

func signedWebhookRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func subscriptionEventPayload(eventType string) string {
	return `{
		"id": "evt_1",
		"type": "` + eventType + `",
		"api_version": "2025-01-01",
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "active",
				"cancel_at_period_end": false,
				"current_period_end": 1790000000,
				"metadata": {"user_id": "user-1"},
				"items": {
					"data": [
						{"current_period_end": 1790000000, "price": {"id": "price_1", "product": "prod_teacher"}}
					]
				}
			}
		}
	}`
}

func TestWebhook_SubscriptionEventApplied(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testWebhookSecret, applier)

	req := signedWebhookRequest(t, subscriptionEventPayload("customer.subscription.updated"), testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp webhookReceivedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Received {
		t.Error("received = false")
	}

	if len(applier.events) != 1 {
		t.Fatalf("applied %d events, want 1", len(applier.events))
	}
	ev := applier.events[0]
	if ev.ID != "sub_1" || ev.Customer != "cus_1" || ev.Status != "active" {
		t.Errorf("event = %+v", ev)
	}
	if got := ev.UserID(); got != "user-1" {
		t.Errorf("UserID() = %q", got)
	}
}

func TestWebhook_UnhandledTypeIgnored(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testWebhookSecret, applier)

	payload := `{"id": "evt_2", "type": "invoice.paid", "data": {"object": {}}}`
	req := signedWebhookRequest(t, payload, testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(applier.events) != 0 {
		t.Errorf("applied %d events, want 0", len(applier.events))
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	handler := NewWebhookHandler(testWebhookSecret, &recordingApplier{})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook",
		strings.NewReader(subscriptionEventPayload("customer.subscription.updated")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_WrongSecret(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testWebhookSecret, applier)

	req := signedWebhookRequest(t, subscriptionEventPayload("customer.subscription.updated"), "whsec_other")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(applier.events) != 0 {
		t.Error("event must not be applied on signature mismatch")
	}
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	handler := NewWebhookHandler("", &recordingApplier{})

	req := signedWebhookRequest(t, subscriptionEventPayload("customer.subscription.updated"), testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	handler := NewWebhookHandler(testWebhookSecret, &recordingApplier{})

	req := httptest.NewRequest(http.MethodGet, "/api/stripe/webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhook_ApplierFailure(t *testing.T) {
	applier := &recordingApplier{err: errors.New("store unavailable")}
	handler := NewWebhookHandler(testWebhookSecret, applier)

	req := signedWebhookRequest(t, subscriptionEventPayload("customer.subscription.deleted"), testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
