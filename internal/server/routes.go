package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classpace/entitlement-sync/internal/config"
	"github.com/classpace/entitlement-sync/internal/directory"
	"github.com/classpace/entitlement-sync/internal/reconciler"
	"github.com/classpace/entitlement-sync/internal/store"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config     *config.Config
	Store      *store.EntitlementStore
	Reconciler *reconciler.Reconciler
	Verifier   directory.TokenVerifier
	Version    string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	// Liveness/readiness probes are unauthenticated.
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", handleReadyz(deps.Store))
	mux.Handle("/metrics", promhttp.Handler())

	// Subscription self-service (bearer-token authenticated; legacy envelope)
	selfServiceLimiter := NewRateLimiter(30, time.Minute)
	mux.Handle("/api/subscription/resume", selfServiceLimiter.Middleware(
		handleSelfService("resume", deps.Verifier, deps.Reconciler.Resume)))
	mux.Handle("/api/subscription/cancel", selfServiceLimiter.Middleware(
		handleSelfService("cancel", deps.Verifier, deps.Reconciler.Cancel)))

	// Stripe webhook (signature-authenticated)
	webhookLimiter := NewRateLimiter(120, time.Minute)
	mux.Handle("/api/stripe/webhook", webhookLimiter.Middleware(
		NewWebhookHandler(deps.Config.StripeWebhookSecret, deps.Reconciler)))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReadyz(st *store.EntitlementStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(); err != nil {
			http.Error(w, "entitlement store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
