// Package service contains the business logic layer.
//
// This file implements the search usage counter: every search action
// appends one usage row, and the response advises the caller whether the
// free-tier quota for the trailing 24-hour window is exhausted.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/metrics"
	"github.com/tabmangment/tabsync/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService defines operations for recording and querying search usage.
type UsageService interface {
	// IncrementSearch appends one usage record for the email and reports
	// quota state. The append is the only hard failure path: plan lookups
	// and the read-back count degrade gracefully.
	IncrementSearch(ctx context.Context, email string) (*domain.SearchUsage, error)

	// CheckUsage reports quota state without recording a search.
	CheckUsage(ctx context.Context, email string) (*domain.UsageCheck, error)
}

// UsageRepository is the subset of repository queries the usage service
// depends on.
type UsageRepository interface {
	GetUserPlanByEmail(ctx context.Context, email string) (repository.UserPlan, error)
	InsertSearchUsage(ctx context.Context, userEmail string, searchedAt time.Time) error
	CountSearchesSince(ctx context.Context, userEmail string, since time.Time) (int64, error)
	OldestSearchSince(ctx context.Context, userEmail string, since time.Time) (time.Time, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	repo   UsageRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(repo UsageRepository, logger *slog.Logger) UsageService {
	return &usageService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// IncrementSearch records a search event and reports quota consumption.
func (s *usageService) IncrementSearch(ctx context.Context, email string) (*domain.SearchUsage, error) {
	const op = "usage.increment"

	if email == "" {
		return nil, domain.Invalid(op, "Email is required")
	}

	now := s.now().UTC()

	// Plan lookup is best-effort: an unknown user or a failed read is
	// treated as non-pro, and the search is still recorded.
	isPro := false
	plan, err := s.repo.GetUserPlanByEmail(ctx, email)
	switch {
	case err == nil:
		isPro = plan.IsPro || plan.IsPremium
	case errors.Is(err, sql.ErrNoRows):
		// Unknown users are free-tier.
	default:
		s.absorb(op+".plan_lookup", err)
	}

	// The append is precious; a failed write is the one error surfaced to
	// the caller.
	if err := s.repo.InsertSearchUsage(ctx, email, now); err != nil {
		return nil, domain.Internal(err, op, "Failed to record search")
	}
	metrics.SearchesRecorded.Inc()

	// Read-back count is best-effort. If it fails the caller still gets a
	// success with placeholder counts; the insert already happened.
	count, err := s.repo.CountSearchesSince(ctx, email, now.Add(-domain.QuotaWindow))
	if err != nil {
		s.absorb(op+".count", err)
		remaining := domain.DegradedFreeRemaining
		if isPro {
			remaining = domain.ProRemainingSentinel
		}
		return &domain.SearchUsage{
			SearchCount: 1,
			Remaining:   remaining,
			IsPro:       isPro,
			Degraded:    true,
		}, nil
	}

	usage := &domain.SearchUsage{
		SearchCount: int(count),
		IsPro:       isPro,
	}
	if isPro {
		usage.Remaining = domain.ProRemainingSentinel
	} else {
		usage.Remaining = domain.FreeRemaining(usage.SearchCount)
		usage.LimitReached = usage.SearchCount >= domain.FreeDailySearchLimit
	}
	if usage.LimitReached {
		metrics.SearchLimitHits.Inc()
	}

	return usage, nil
}

// CheckUsage reports quota state without recording a search. Unlike the
// increment path, a failed count here is a hard error: nothing was written,
// so there is nothing to protect.
func (s *usageService) CheckUsage(ctx context.Context, email string) (*domain.UsageCheck, error) {
	const op = "usage.check"

	if email == "" {
		return nil, domain.Invalid(op, "Email is required")
	}

	now := s.now().UTC()

	plan, err := s.repo.GetUserPlanByEmail(ctx, email)
	if err == nil && (plan.IsPro || plan.IsPremium) {
		return &domain.UsageCheck{
			CanSearch: true,
			Remaining: domain.ProRemainingSentinel,
			IsPro:     true,
		}, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.absorb(op+".plan_lookup", err)
	}

	since := now.Add(-domain.QuotaWindow)
	count, err := s.repo.CountSearchesSince(ctx, email, since)
	if err != nil {
		return nil, domain.Internal(err, op, "Database error")
	}

	check := &domain.UsageCheck{
		SearchCount: int(count),
		CanSearch:   int(count) < domain.FreeDailySearchLimit,
		Remaining:   domain.FreeRemaining(int(count)),
	}

	if count > 0 {
		oldest, err := s.repo.OldestSearchSince(ctx, email, since)
		if err != nil {
			s.absorb(op+".oldest", err)
		} else {
			resetsAt := oldest.Add(domain.QuotaWindow)
			check.ResetsAt = &resetsAt
		}
	}

	return check, nil
}

// absorb logs and counts a best-effort failure without propagating it.
func (s *usageService) absorb(op string, err error) {
	s.logger.Warn("best-effort operation failed", "op", op, "error", err)
	metrics.SwallowedErrors.WithLabelValues(op).Inc()
}
