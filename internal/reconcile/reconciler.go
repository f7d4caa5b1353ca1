package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/entitlement"
	"github.com/tabmangment/tabsync/internal/identity"
	"github.com/tabmangment/tabsync/internal/metrics"
	"github.com/tabmangment/tabsync/internal/notify"
)

// TabCloser closes the tab that triggered a signal after a successful
// upgrade. Environments without tab control use the no-op.
type TabCloser interface {
	Close(ctx context.Context, tabID int) error
}

// NoopTabCloser ignores close requests.
type NoopTabCloser struct{}

func (NoopTabCloser) Close(context.Context, int) error { return nil }

// Config tunes the reconciliation loop.
type Config struct {
	// RetryDelay is the fixed delay between status polls. No backoff: the
	// payment flow settles within a few polls or not at all.
	RetryDelay time.Duration

	// MaxAttempts bounds the polling so an abandoned checkout cannot leak
	// background work.
	MaxAttempts int

	// TabCloseDelay is how long to leave the success page visible before
	// closing its tab.
	TabCloseDelay time.Duration
}

// errNotActive marks a poll that reached the authority but found no active
// pro subscription yet.
var errNotActive = errors.New("subscription not active yet")

// Reconciler consumes payment signals and reconciles the local entitlement
// cache against the remote authority.
type Reconciler struct {
	cache    *entitlement.Cache
	status   StatusChecker
	resolver identity.Resolver
	notifier notify.Notifier
	tabs     TabCloser
	config   Config
	logger   *slog.Logger

	signals chan Signal
	now     func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a reconciler. Callers feed it through Submit or the channel
// returned by Signals.
func New(cache *entitlement.Cache, status StatusChecker, resolver identity.Resolver, notifier notify.Notifier, tabs TabCloser, config Config, logger *slog.Logger) *Reconciler {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 30
	}
	if tabs == nil {
		tabs = NoopTabCloser{}
	}

	return &Reconciler{
		cache:    cache,
		status:   status,
		resolver: resolver,
		notifier: notifier,
		tabs:     tabs,
		config:   config,
		logger:   logger,
		signals:  make(chan Signal, 16),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Signals returns the channel signal producers write to.
func (r *Reconciler) Signals() chan<- Signal {
	return r.signals
}

// Submit queues a signal without blocking; signals are hints, so dropping
// one under pressure is acceptable (the flag watcher will re-raise it).
func (r *Reconciler) Submit(sig Signal) bool {
	select {
	case r.signals <- sig:
		return true
	default:
		r.logger.Warn("signal queue full, dropping signal")
		return false
	}
}

// Start launches the signal consumer.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
	r.logger.Info("reconciler started",
		"retry_delay", r.config.RetryDelay,
		"max_attempts", r.config.MaxAttempts,
	)
}

// Stop signals the consumer to stop and waits for it to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case sig := <-r.signals:
			r.Handle(ctx, sig)
		}
	}
}

// Handle processes one signal synchronously: resolve the user, poll the
// authority until the upgrade is visible or attempts run out, then activate.
func (r *Reconciler) Handle(ctx context.Context, sig Signal) {
	if !sig.PaymentCompleted() {
		return
	}

	email := r.resolveEmail(ctx)
	if email == "" {
		// No identity, nothing to reconcile against.
		r.logger.Warn("payment signal with no resolvable user email, aborting")
		metrics.SwallowedErrors.WithLabelValues("reconcile.identity").Inc()
		return
	}

	r.logger.Info("reconciling subscription state", "email", email)

	var status domain.RemoteStatus
	backoff := retry.WithMaxRetries(uint64(r.config.MaxAttempts-1), retry.NewConstant(r.config.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		remote, err := r.status.Check(ctx, email)
		if err != nil {
			// Network and decode failures are absorbed; the next poll may
			// succeed.
			r.logger.Warn("status poll failed", "email", email, "error", err)
			metrics.ReconcileAttempts.WithLabelValues("error").Inc()
			metrics.SwallowedErrors.WithLabelValues("reconcile.poll").Inc()
			return retry.RetryableError(err)
		}

		if !remote.Active() {
			metrics.ReconcileAttempts.WithLabelValues("pending").Inc()
			return retry.RetryableError(errNotActive)
		}

		metrics.ReconcileAttempts.WithLabelValues("activated").Inc()
		status = remote
		return nil
	})
	if err != nil {
		metrics.ReconcileGiveUps.Inc()
		r.logger.Warn("reconciliation gave up",
			"email", email,
			"max_attempts", r.config.MaxAttempts,
			"error", err,
		)
		return
	}

	r.activate(ctx, email, status, sig)
}

// resolveEmail prefers the cached email and falls back to the identity
// resolver, caching whatever it learns.
func (r *Reconciler) resolveEmail(ctx context.Context) string {
	email, err := r.cache.Email(ctx)
	if err != nil {
		r.logger.Warn("failed to read cached email", "error", err)
		metrics.SwallowedErrors.WithLabelValues("reconcile.cache_read").Inc()
	}
	if email != "" {
		return email
	}

	email, err = r.resolver.Email(ctx)
	if err != nil {
		r.logger.Warn("identity resolution failed", "error", err)
		metrics.SwallowedErrors.WithLabelValues("reconcile.identity").Inc()
		return ""
	}
	if email == "" {
		return ""
	}

	if err := r.cache.PutEmail(ctx, email); err != nil {
		r.logger.Warn("failed to cache resolved email", "error", err)
		metrics.SwallowedErrors.WithLabelValues("reconcile.cache_write").Inc()
	}
	return email
}

// activate rewrites the entitlement record wholesale, announces the upgrade
// and closes the originating tab.
func (r *Reconciler) activate(ctx context.Context, email string, status domain.RemoteStatus, sig Signal) {
	now := r.now().UTC()

	periodEnd := now.AddDate(0, 1, 0)
	if status.CurrentPeriodEnd != nil {
		periodEnd = status.CurrentPeriodEnd.UTC()
	}

	record := domain.ProEntitlement(status.SubscriptionID, periodEnd, now)
	if err := r.cache.PutRecord(ctx, record); err != nil {
		r.logger.Error("failed to store entitlement record", "email", email, "error", err)
		return
	}
	if err := r.cache.PutEmail(ctx, email); err != nil {
		r.logger.Warn("failed to store email", "error", err)
		metrics.SwallowedErrors.WithLabelValues("reconcile.cache_write").Inc()
	}
	if err := r.cache.StampActivationSignal(ctx); err != nil {
		r.logger.Warn("failed to stamp activation signal", "error", err)
		metrics.SwallowedErrors.WithLabelValues("reconcile.cache_write").Inc()
	}

	metrics.ProActivations.Inc()
	r.logger.Info("subscription activated",
		"email", email,
		"subscription_id", status.SubscriptionID,
		"period_end", periodEnd,
	)

	r.notifier.ProActivated(ctx, email)

	if tabID, ok := sig.Tab(); ok {
		r.closeTabLater(ctx, tabID)
	}
}

// closeTabLater closes the success tab after the configured delay, leaving
// the confirmation page visible for a moment. Best effort.
func (r *Reconciler) closeTabLater(ctx context.Context, tabID int) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(r.config.TabCloseDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-timer.C:
		}

		if err := r.tabs.Close(ctx, tabID); err != nil {
			r.logger.Warn("failed to close tab", "tab_id", tabID, "error", err)
			metrics.SwallowedErrors.WithLabelValues("reconcile.tab_close").Inc()
		}
	}()
}
