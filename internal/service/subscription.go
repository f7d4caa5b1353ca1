// Package service contains the business logic layer.
//
// This file implements the subscription service: the authoritative status
// query consumed by the agent's reconciliation loop, and the state writers
// driven by billing webhook events.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/repository"
)

// SubscriptionStatus is the authoritative answer for one user, as served by
// the payment-status endpoint.
type SubscriptionStatus struct {
	UserExists       bool
	IsPro            bool
	Status           string
	Plan             domain.PlanType
	SubscriptionID   string
	StripeCustomerID string
	CurrentPeriodEnd *time.Time
	ActivatedAt      *time.Time
}

// ApplySubscriptionParams carries the state extracted from a billing event.
type ApplySubscriptionParams struct {
	StripeCustomerID string
	Status           domain.SubscriptionStatus
	Plan             domain.PlanType
	SubscriptionID   string
	CurrentPeriodEnd *time.Time
}

// SubscriptionService defines subscription state operations.
type SubscriptionService interface {
	// Status returns the authoritative subscription state for an email.
	// Unknown users resolve to free-tier defaults with UserExists false.
	Status(ctx context.Context, email string) (*SubscriptionStatus, error)

	// EnsureCustomer guarantees a user row exists for the email and links
	// the Stripe customer to it.
	EnsureCustomer(ctx context.Context, email, stripeCustomerID string) error

	// ApplySubscription replaces the stored subscription state for the user
	// owning the Stripe customer. The full record is written on every call.
	ApplySubscription(ctx context.Context, params ApplySubscriptionParams) error
}

// SubscriptionRepository is the subset of repository queries the
// subscription service depends on.
type SubscriptionRepository interface {
	GetUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (repository.User, error)
	UpsertUserByEmail(ctx context.Context, email string, stripeCustomerID sql.NullString) error
	UpdateSubscriptionByCustomerID(ctx context.Context, p repository.UpdateSubscriptionParams) error
}

type subscriptionService struct {
	repo   SubscriptionRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *subscriptionService) Status(ctx context.Context, email string) (*SubscriptionStatus, error) {
	const op = "subscription.status"

	if email == "" {
		return nil, domain.Invalid(op, "Email is required")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown users are valid callers; they just have no subscription.
		return &SubscriptionStatus{
			Status: string(domain.SubscriptionStatusFree),
			Plan:   domain.PlanFree,
		}, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user")
	}

	status := &SubscriptionStatus{
		UserExists:       true,
		IsPro:            user.IsPro || user.IsPremium,
		Status:           user.SubscriptionStatus,
		Plan:             domain.PlanType(user.PlanType),
		SubscriptionID:   user.StripeSubscriptionID.String,
		StripeCustomerID: user.StripeCustomerID.String,
	}
	if user.CurrentPeriodEnd.Valid {
		end := user.CurrentPeriodEnd.Time
		status.CurrentPeriodEnd = &end
	}
	if user.ProActivatedAt.Valid {
		at := user.ProActivatedAt.Time
		status.ActivatedAt = &at
	}
	return status, nil
}

func (s *subscriptionService) EnsureCustomer(ctx context.Context, email, stripeCustomerID string) error {
	const op = "subscription.ensure_customer"

	if email == "" {
		return domain.Invalid(op, "Email is required")
	}

	customer := sql.NullString{String: stripeCustomerID, Valid: stripeCustomerID != ""}
	if err := s.repo.UpsertUserByEmail(ctx, email, customer); err != nil {
		return domain.Internal(err, op, "failed to upsert user")
	}
	return nil
}

func (s *subscriptionService) ApplySubscription(ctx context.Context, params ApplySubscriptionParams) error {
	const op = "subscription.apply"

	if params.StripeCustomerID == "" {
		return domain.Invalid(op, "stripe customer ID is required")
	}

	isPro := params.Status == domain.SubscriptionStatusActive && params.Plan == domain.PlanPro

	update := repository.UpdateSubscriptionParams{
		StripeCustomerID:   params.StripeCustomerID,
		IsPro:              isPro,
		IsPremium:          isPro,
		PlanType:           string(params.Plan),
		SubscriptionStatus: string(params.Status),
	}
	if params.SubscriptionID != "" {
		update.StripeSubscriptionID = sql.NullString{String: params.SubscriptionID, Valid: true}
	}
	if params.CurrentPeriodEnd != nil {
		update.CurrentPeriodEnd = sql.NullTime{Time: *params.CurrentPeriodEnd, Valid: true}
	}
	if isPro {
		update.ProActivatedAt = sql.NullTime{Time: s.now().UTC(), Valid: true}
	}

	if err := s.repo.UpdateSubscriptionByCustomerID(ctx, update); err != nil {
		return domain.Internal(err, op, "failed to update subscription")
	}

	s.logger.Info("subscription state applied",
		"customer_id", params.StripeCustomerID,
		"status", params.Status,
		"plan", params.Plan,
		"is_pro", isPro,
	)
	return nil
}
