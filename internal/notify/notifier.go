// Package notify delivers user-facing notifications. Environments without a
// notification surface use the no-op implementation, decided once at
// startup.
package notify

import (
	"context"
	"log/slog"
)

// Notifier announces entitlement changes to the user.
type Notifier interface {
	ProActivated(ctx context.Context, email string)
}

// SlogNotifier writes notifications to the structured log.
type SlogNotifier struct {
	logger *slog.Logger
}

// NewSlogNotifier creates a log-backed notifier.
func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	return &SlogNotifier{logger: logger}
}

func (n *SlogNotifier) ProActivated(_ context.Context, email string) {
	n.logger.Info("pro features activated", "email", email)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) ProActivated(context.Context, string) {}
