// Package reconcile drives the agent's subscription-state reconciliation:
// after a payment signal it polls the remote authority until the upgrade is
// visible, then rewrites the local entitlement cache.
package reconcile

import "regexp"

// Signal is a hint that a payment may have completed. Signals carry no
// proof; the reconciler always verifies against the remote authority.
type Signal interface {
	// PaymentCompleted reports whether the signal indicates a finished
	// payment flow.
	PaymentCompleted() bool

	// Tab returns the originating tab, when the signal came from one.
	Tab() (int, bool)
}

// Checkout success pages across the hosts the payment flow can land on.
var successPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stripe\.com.*success`),
	regexp.MustCompile(`(?i)tabmangment.*success`),
	regexp.MustCompile(`(?i)vercel\.app.*success`),
	regexp.MustCompile(`(?i)checkout\.stripe\.com.*success`),
	regexp.MustCompile(`(?i)buy\.stripe\.com.*success`),
}

var sessionIDPattern = regexp.MustCompile(`session_id=([^&]+)`)

// NavigationSignal is raised when a tab lands on a URL. It completes a
// payment only when the URL matches one of the checkout success patterns.
type NavigationSignal struct {
	URL   string
	TabID int
}

func (s NavigationSignal) PaymentCompleted() bool {
	if s.URL == "" {
		return false
	}
	for _, pattern := range successPatterns {
		if pattern.MatchString(s.URL) {
			return true
		}
	}
	return false
}

func (s NavigationSignal) Tab() (int, bool) {
	if s.TabID == 0 {
		return 0, false
	}
	return s.TabID, true
}

// SessionID extracts the checkout session id from the URL, or "" when the
// URL carries none.
func (s NavigationSignal) SessionID() string {
	match := sessionIDPattern.FindStringSubmatch(s.URL)
	if match == nil {
		return ""
	}
	return match[1]
}

// FlagSignal is raised by the flag watcher when a payment marker appears in
// the cache. It has no originating tab.
type FlagSignal struct{}

func (FlagSignal) PaymentCompleted() bool { return true }

func (FlagSignal) Tab() (int, bool) { return 0, false }
