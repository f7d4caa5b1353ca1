// Package handler contains HTTP handlers for the tabsync API.
//
// This file implements the Stripe webhook handler keeping the users table in
// sync with billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/tabmangment/tabsync/internal/billing"
	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/metrics"
	"github.com/tabmangment/tabsync/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC (no auth middleware).
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)
	metrics.WebhookEvents.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionEvent(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.Customer == nil || session.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", session.ID)
		return
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email != "" {
		if err := h.subscriptions.EnsureCustomer(webhookCtx(), email, session.Customer.ID); err != nil {
			h.logger.Error("failed to link stripe customer", "error", err, "customer_id", session.Customer.ID)
			return
		}
	}

	// The subscription events carry the full plan and period; checkout
	// completion only marks the subscription active up front.
	err := h.subscriptions.ApplySubscription(webhookCtx(), service.ApplySubscriptionParams{
		StripeCustomerID: session.Customer.ID,
		Status:           domain.SubscriptionStatusActive,
		Plan:             domain.PlanPro,
		SubscriptionID:   session.Subscription.ID,
	})
	if err != nil {
		h.logger.Error("failed to apply checkout completion", "error", err, "customer_id", session.Customer.ID)
	}
}

func (h *WebhookHandler) handleSubscriptionEvent(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	plan := domain.PlanFree
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan = h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
	}

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &end
	}

	err := h.subscriptions.ApplySubscription(webhookCtx(), service.ApplySubscriptionParams{
		StripeCustomerID: sub.Customer.ID,
		Status:           domain.SubscriptionStatus(sub.Status),
		Plan:             plan,
		SubscriptionID:   sub.ID,
		CurrentPeriodEnd: periodEnd,
	})
	if err != nil {
		h.logger.Error("failed to apply subscription event", "error", err, "customer_id", sub.Customer.ID)
	}
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return
	}

	err := h.subscriptions.ApplySubscription(webhookCtx(), service.ApplySubscriptionParams{
		StripeCustomerID: sub.Customer.ID,
		Status:           domain.SubscriptionStatusCanceled,
		Plan:             domain.PlanFree,
	})
	if err != nil {
		h.logger.Error("failed to deactivate subscription", "error", err, "customer_id", sub.Customer.ID)
		return
	}

	h.logger.Info("subscription deleted", "customer_id", sub.Customer.ID, "subscription_id", sub.ID)
}

func (h *WebhookHandler) handlePaymentSucceeded(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	// Recovery from past_due: a successful payment reactivates the plan.
	var periodEnd *time.Time
	if invoice.PeriodEnd > 0 {
		end := time.Unix(invoice.PeriodEnd, 0).UTC()
		periodEnd = &end
	}

	err := h.subscriptions.ApplySubscription(webhookCtx(), service.ApplySubscriptionParams{
		StripeCustomerID: invoice.Customer.ID,
		Status:           domain.SubscriptionStatusActive,
		Plan:             domain.PlanPro,
		SubscriptionID:   invoiceSubscriptionID(invoice),
		CurrentPeriodEnd: periodEnd,
	})
	if err != nil {
		h.logger.Error("failed to reactivate on payment success", "error", err, "customer_id", invoice.Customer.ID)
	}
}

func (h *WebhookHandler) handlePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	err := h.subscriptions.ApplySubscription(webhookCtx(), service.ApplySubscriptionParams{
		StripeCustomerID: invoice.Customer.ID,
		Status:           domain.SubscriptionStatusPastDue,
		Plan:             domain.PlanPro,
		SubscriptionID:   invoiceSubscriptionID(invoice),
	})
	if err != nil {
		h.logger.Error("failed to set past_due on payment failure", "error", err, "customer_id", invoice.Customer.ID)
		return
	}

	h.logger.Warn("payment failed", "customer_id", invoice.Customer.ID)
}

func invoiceSubscriptionID(invoice stripe.Invoice) string {
	if invoice.Subscription != nil {
		return invoice.Subscription.ID
	}
	return ""
}

// webhookCtx returns a background context for webhook processing.
// Webhooks arrive outside any user request, so there is no request context
// to propagate.
func webhookCtx() context.Context {
	return context.Background()
}
