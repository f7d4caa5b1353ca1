package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tabmangment/tabsync/internal/entitlement"
	"github.com/tabmangment/tabsync/internal/metrics"
)

// FlagWatcher polls the cache for payment markers written by other
// components and converts them into reconciliation signals.
type FlagWatcher struct {
	cache    *entitlement.Cache
	signals  chan<- Signal
	interval time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewFlagWatcher creates a watcher feeding the given signal channel.
func NewFlagWatcher(cache *entitlement.Cache, signals chan<- Signal, interval time.Duration, logger *slog.Logger) *FlagWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &FlagWatcher{
		cache:    cache,
		signals:  signals,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *FlagWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("flag watcher started", "interval", w.interval)
}

// Stop signals the watcher to stop and waits for it to finish.
func (w *FlagWatcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("flag watcher stopped")
}

func (w *FlagWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *FlagWatcher) poll(ctx context.Context) {
	flagged, err := w.cache.PaymentFlags(ctx)
	if err != nil {
		w.logger.Warn("failed to read payment flags", "error", err)
		metrics.SwallowedErrors.WithLabelValues("watcher.poll").Inc()
		return
	}
	if !flagged {
		return
	}

	// Clear before emitting so one flag produces one signal.
	if err := w.cache.ClearPaymentFlags(ctx); err != nil {
		w.logger.Warn("failed to clear payment flags", "error", err)
		metrics.SwallowedErrors.WithLabelValues("watcher.clear").Inc()
	}

	select {
	case w.signals <- FlagSignal{}:
		w.logger.Info("payment flag observed, reconciliation queued")
	case <-ctx.Done():
	case <-w.stopCh:
	}
}
