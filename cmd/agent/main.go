// The agent runs next to the user: it keeps the local entitlement cache, the
// session guard, and the reconciliation loop, and exposes a small local
// bridge that accepts navigation events from the browser integration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabmangment/tabsync/internal"
	"github.com/tabmangment/tabsync/internal/entitlement"
	"github.com/tabmangment/tabsync/internal/identity"
	"github.com/tabmangment/tabsync/internal/notify"
	"github.com/tabmangment/tabsync/internal/reconcile"
	"github.com/tabmangment/tabsync/internal/session"
)

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := internal.NewAgentConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Entitlement store: Redis when configured, in-memory otherwise.
	var kv entitlement.KV
	if cfg.RedisURL != "" {
		redisKV, err := entitlement.NewRedisKV(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisKV.Close()
		kv = redisKV
		logger.Info("entitlement cache backed by redis")
	} else {
		kv = entitlement.NewMemoryKV()
		logger.Warn("entitlement cache is in-memory, state will not survive restarts")
	}
	cache := entitlement.NewCache(kv, logger)

	// Session guard
	guard := session.NewGuard(kv, cfg.SessionCheckInterval, logger)
	guard.Start(ctx)
	defer guard.Stop()

	// Capabilities, decided once at startup.
	var resolver identity.Resolver = identity.Noop{}
	if cfg.IdentityEndpoint != "" {
		resolver = identity.NewHTTPResolver(cfg.IdentityEndpoint, func(ctx context.Context) string {
			return guard.Token(ctx)
		})
		logger.Info("identity resolution enabled", "endpoint", cfg.IdentityEndpoint)
	}
	notifier := notify.NewSlogNotifier(logger)

	// Reconciliation loop
	statusClient := reconcile.NewStatusClient(cfg.StatusEndpoint)
	reconciler := reconcile.New(cache, statusClient, resolver, notifier, reconcile.NoopTabCloser{}, reconcile.Config{
		RetryDelay:    cfg.ReconcileRetryDelay,
		MaxAttempts:   cfg.ReconcileMaxAttempts,
		TabCloseDelay: cfg.TabCloseDelay,
	}, logger)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	watcher := reconcile.NewFlagWatcher(cache, reconciler.Signals(), 5*time.Second, logger)
	watcher.Start(ctx)
	defer watcher.Stop()

	// ==========================================================================
	// Local bridge
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Navigation events from the browser integration. Every tab navigation
	// lands here; the signal itself decides whether it is a payment page.
	mux.HandleFunc("POST /events/navigation", func(w http.ResponseWriter, r *http.Request) {
		var event struct {
			URL   string `json:"url"`
			TabID int    `json:"tabId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil || event.URL == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "url is required"})
			return
		}

		queued := reconciler.Submit(reconcile.NavigationSignal{URL: event.URL, TabID: event.TabID})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "queued": queued})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler: mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("agent bridge started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("agent bridge failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("agent bridge shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
