package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classpace/entitlement-sync/internal/directory"
	"github.com/classpace/entitlement-sync/internal/syncmetrics"
)

// selfServiceResponse is the legacy success envelope of the resume and
// cancel endpoints. next_renewal is null when the billing record carries no
// renewal timestamp.
type selfServiceResponse struct {
	Success     bool    `json:"success"`
	NextRenewal *string `json:"next_renewal"`
}

// errorResponse is the legacy failure envelope. Every failure is surfaced as
// HTTP 500 with an opaque message; callers must not rely on any particular
// string being stable.
type errorResponse struct {
	Error string `json:"error"`
}

type selfServiceOp func(ctx context.Context, p directory.Principal) (*time.Time, error)

// handleSelfService implements the shared shape of the resume and cancel
// endpoints: bearer-authenticated POST, no request body, legacy envelopes.
func handleSelfService(action string, verifier directory.TokenVerifier, op selfServiceOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		outcome := "error"
		defer func() {
			syncmetrics.SelfServiceTotal.WithLabelValues(action, outcome).Inc()
		}()

		principal, err := verifier.VerifyToken(bearerToken(r))
		if err != nil {
			log.Warn().Err(err).Str("action", action).Msg("Self-service token verification failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not verify user"})
			return
		}

		renewal, err := op(r.Context(), *principal)
		if err != nil {
			log.Warn().Err(err).
				Str("action", action).
				Str("user_id", principal.ID).
				Msg("Self-service operation failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		outcome = "success"
		var next *string
		if renewal != nil {
			s := renewal.UTC().Format(time.RFC3339)
			next = &s
		}
		writeJSON(w, http.StatusOK, selfServiceResponse{Success: true, NextRenewal: next})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("server: encode response")
	}
}
