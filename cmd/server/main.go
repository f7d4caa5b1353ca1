package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabmangment/tabsync/internal"
	"github.com/tabmangment/tabsync/internal/billing"
	"github.com/tabmangment/tabsync/internal/handler"
	"github.com/tabmangment/tabsync/internal/metrics"
	"github.com/tabmangment/tabsync/internal/middleware"
	"github.com/tabmangment/tabsync/internal/repository"
	"github.com/tabmangment/tabsync/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize billing (nil when Stripe is not configured)
	var billingService billing.Service
	prices := billing.PriceConfig{
		ProMonthlyPriceID: cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:  cfg.StripeProYearlyPriceID,
	}
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, prices)
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, billing endpoints answer 404")
	}

	// Initialize services
	usageService := service.NewUsageService(repo, logger)
	subscriptionService := service.NewSubscriptionService(repo, logger)

	// Initialize handlers
	searchHandler := handler.NewSearchHandler(usageService, logger)
	statusHandler := handler.NewStatusHandler(subscriptionService, logger)
	billingHandler := handler.NewBillingHandler(billingService, subscriptionService, cfg.BaseURL, prices, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Extension API
	searchHandler.RegisterRoutes(mux)
	statusHandler.RegisterRoutes(mux)
	billingHandler.RegisterRoutes(mux)
	webhookHandler.RegisterRoutes(mux)

	// Middleware stack: logging -> metrics -> rate limit -> mux
	var root http.Handler = mux
	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
		root = middleware.NewRateLimitMiddleware(limiter, logger).Limit(root)
	}
	root = metrics.Middleware(root)
	root = middleware.NewRequestLoggingMiddleware(logger).Handler(root)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
