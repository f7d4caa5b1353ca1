// Package handler contains HTTP handlers for the tabsync API.
//
// This file implements the payment status endpoint: the authoritative
// subscription state the agent's reconciliation loop polls after a payment
// signal.
//
// Routes:
//   - GET|POST /api/check-payment-status -> CheckPaymentStatus
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/service"
)

// StatusHandler serves authoritative subscription status by email.
type StatusHandler struct {
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(subscriptions service.SubscriptionService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers status routes on the provided mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/check-payment-status", h.CheckPaymentStatus)
	mux.HandleFunc("POST /api/check-payment-status", h.CheckPaymentStatus)
	mux.HandleFunc("OPTIONS /api/check-payment-status", handlePreflight("GET, POST, OPTIONS"))
}

// CheckPaymentStatus returns the subscription state for a user. The email
// arrives in the query string (GET) or the JSON body (POST). Unknown users
// get free-tier defaults rather than an error.
func (h *StatusHandler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "GET, POST, OPTIONS")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	email := r.URL.Query().Get("email")
	if email == "" && r.Method == http.MethodPost {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			email = req.Email
		}
	}
	if email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("subscription.status", "Email is required"))
		return
	}

	status, err := h.subscriptions.Status(r.Context(), email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var periodEnd *string
	if status.CurrentPeriodEnd != nil {
		s := status.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		periodEnd = &s
	}
	var activatedAt *string
	if status.ActivatedAt != nil {
		s := status.ActivatedAt.UTC().Format(time.RFC3339)
		activatedAt = &s
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"userExists":       status.UserExists,
		"isPro":            status.IsPro,
		"status":           status.Status,
		"plan":             status.Plan,
		"subscriptionId":   status.SubscriptionID,
		"currentPeriodEnd": periodEnd,
		"activatedAt":      activatedAt,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
