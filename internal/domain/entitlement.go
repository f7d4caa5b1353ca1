// Package domain contains core business types and interfaces.
//
// This file defines the entitlement types describing what a user is
// authorized to use, derived from their subscription plan. The record is
// cached locally by the agent and reconciled against the remote authority.
package domain

import "time"

// PlanType is the subscription plan a user is on.
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
)

// SubscriptionStatus mirrors the status strings reported by the billing
// provider. Only "active" grants pro entitlement.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusFree     SubscriptionStatus = "free"
)

// EntitlementRecord is the locally cached view of a user's subscription
// state. Writers replace the whole record; it is never patched field by
// field (last write wins across the single-writer cache).
type EntitlementRecord struct {
	IsPremium          bool       `json:"isPremium"`
	SubscriptionActive bool       `json:"subscriptionActive"`
	PlanType           PlanType   `json:"planType"`
	SubscriptionID     string     `json:"subscriptionId,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	NextBillingDate    *time.Time `json:"nextBillingDate,omitempty"`
	LastStatusCheck    time.Time  `json:"lastStatusCheck"`
}

// FreeEntitlement returns the record written at install time and by the
// explicit downgrade action.
func FreeEntitlement(now time.Time) EntitlementRecord {
	return EntitlementRecord{
		IsPremium:          false,
		SubscriptionActive: false,
		PlanType:           PlanFree,
		LastStatusCheck:    now,
	}
}

// ProEntitlement builds the record written after a successful
// reconciliation against the remote authority.
func ProEntitlement(subscriptionID string, periodEnd time.Time, now time.Time) EntitlementRecord {
	end := periodEnd
	return EntitlementRecord{
		IsPremium:          true,
		SubscriptionActive: true,
		PlanType:           PlanPro,
		SubscriptionID:     subscriptionID,
		CurrentPeriodEnd:   &end,
		NextBillingDate:    &end,
		LastStatusCheck:    now,
	}
}

// Validate checks the record invariants: pro implies premium, and free
// records carry no billing period.
func (r EntitlementRecord) Validate() error {
	const op = "entitlement.validate"

	switch r.PlanType {
	case PlanFree, PlanPro:
	default:
		return Invalid(op, "unknown plan type")
	}
	if r.PlanType == PlanPro && !r.IsPremium {
		return Invalid(op, "pro plan requires the premium flag")
	}
	if r.PlanType == PlanFree && r.CurrentPeriodEnd != nil {
		return Invalid(op, "free plan must not carry a billing period end")
	}
	return nil
}

// IsPro reports whether the record grants pro features.
func (r EntitlementRecord) IsPro() bool {
	return r.SubscriptionActive && r.PlanType == PlanPro
}

// RemoteStatus is the authoritative subscription state returned by the
// remote status endpoint, keyed by user email.
type RemoteStatus struct {
	IsPro            bool       `json:"isPro"`
	Status           string     `json:"status"`
	Plan             string     `json:"plan"`
	SubscriptionID   string     `json:"subscriptionId"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
}

// Active reports whether the remote state satisfies the reconciliation
// success condition: an active pro subscription.
func (s RemoteStatus) Active() bool {
	return s.IsPro && s.Status == string(SubscriptionStatusActive) && s.Plan == string(PlanPro)
}
