// Package domain contains core business types and interfaces.
//
// This file defines the search-usage quota types. Free users get a fixed
// number of searches per trailing 24-hour window; pro users are unlimited.
package domain

import "time"

const (
	// FreeDailySearchLimit is the number of searches a free user may
	// perform in the trailing 24-hour quota window.
	FreeDailySearchLimit = 5

	// ProRemainingSentinel is reported as the remaining count for pro
	// users instead of a real number.
	ProRemainingSentinel = 999

	// DegradedFreeRemaining is the placeholder remaining count reported to
	// free users when the post-insert count query fails. Note it disagrees
	// with FreeDailySearchLimit-1 only by coincidence of history: the two
	// values are defined side by side here so the mismatch cannot drift
	// further apart.
	DegradedFreeRemaining = 4

	// QuotaWindow is the trailing period over which searches are counted.
	QuotaWindow = 24 * time.Hour
)

// UsageRecord is one appended search event. Rows are append-only and never
// mutated or expired.
type UsageRecord struct {
	UserEmail  string
	SearchedAt time.Time
}

// SearchUsage is the structured result of recording a search.
type SearchUsage struct {
	SearchCount  int
	Remaining    int
	LimitReached bool
	IsPro        bool

	// Degraded is set when the read-back count failed and the counts above
	// are placeholders. The write itself succeeded.
	Degraded bool
}

// UsageCheck is the result of a read-only quota query.
type UsageCheck struct {
	SearchCount int
	CanSearch   bool
	Remaining   int
	IsPro       bool

	// ResetsAt is when the oldest in-window search falls out of the quota
	// window. Nil when the window is empty or the user is pro.
	ResetsAt *time.Time
}

// FreeRemaining computes the advisory remaining count for a free user.
func FreeRemaining(searchCount int) int {
	if remaining := FreeDailySearchLimit - searchCount; remaining > 0 {
		return remaining
	}
	return 0
}
