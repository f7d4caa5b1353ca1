// Package handler contains HTTP handlers for the tabsync API.
//
// This file implements checkout and billing-portal session creation backed
// by Stripe.
//
// Routes:
//   - POST /api/create-checkout-session -> CreateCheckoutSession
//   - POST /api/billing-portal          -> OpenBillingPortal
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tabmangment/tabsync/internal/billing"
	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/service"
)

// BillingHandler handles checkout and portal session requests.
type BillingHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	baseURL       string
	prices        billing.PriceConfig
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode);
// the endpoints then answer 404.
func NewBillingHandler(billingService billing.Service, subscriptions service.SubscriptionService, baseURL string, prices billing.PriceConfig, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		baseURL:       baseURL,
		prices:        prices,
		logger:        logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/create-checkout-session", h.CreateCheckoutSession)
	mux.HandleFunc("OPTIONS /api/create-checkout-session", handlePreflight("POST, OPTIONS"))
	mux.HandleFunc("POST /api/billing-portal", h.OpenBillingPortal)
	mux.HandleFunc("OPTIONS /api/billing-portal", handlePreflight("POST, OPTIONS"))
}

type checkoutRequest struct {
	Email    string `json:"email"`
	Interval string `json:"interval"` // "monthly" (default) or "yearly"
}

// CreateCheckoutSession creates a Stripe Checkout session for the pro plan
// and returns its URL. A user row and Stripe customer are created on demand.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	const op = "billing.checkout"
	setCORSHeaders(w, "POST, OPTIONS")

	if h.billing == nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Email is required"))
		return
	}

	priceID := h.prices.ProMonthlyPriceID
	if req.Interval == "yearly" {
		priceID = h.prices.ProYearlyPriceID
	}
	if priceID == "" {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINTERNAL, op, "no price configured for interval"))
		return
	}

	status, err := h.subscriptions.Status(r.Context(), req.Email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	customerID := status.StripeCustomerID
	if customerID == "" {
		customerID, err = h.billing.CreateCustomer(req.Email)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to initialize billing"))
			return
		}
	}
	if err := h.subscriptions.EnsureCustomer(r.Context(), req.Email, customerID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	successURL := fmt.Sprintf("%s/payment-success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/pricing", h.baseURL)

	checkoutURL, err := h.billing.CreateCheckoutSession(customerID, priceID, successURL, cancelURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     checkoutURL,
	})
}

// OpenBillingPortal creates a Stripe Customer Portal session for an
// existing customer and returns its URL.
func (h *BillingHandler) OpenBillingPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.portal"
	setCORSHeaders(w, "POST, OPTIONS")

	if h.billing == nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Email is required"))
		return
	}

	status, err := h.subscriptions.Status(r.Context(), req.Email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if status.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account for this user"))
		return
	}

	returnURL := fmt.Sprintf("%s/account", h.baseURL)
	portalURL, err := h.billing.CreatePortalSession(status.StripeCustomerID, returnURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to open billing portal"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     portalURL,
	})
}
