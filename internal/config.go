package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (checkout redirects)
	BaseURL string

	// Stripe Billing Configuration
	// These are required when billing is enabled in production.
	// In development, billing handlers answer 404 if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe Price IDs for subscription plans
	StripeProMonthlyPriceID string
	StripeProYearlyPriceID  string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string

	// Rate limiting for the public /api endpoints
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		// Stripe billing (optional — endpoints 404 without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Stripe price IDs (optional — required when billing is enabled)
		StripeProMonthlyPriceID: getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:  getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Rate limiting
		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StripeSecretKey != "" && cfg.StripeProMonthlyPriceID == "" {
		return nil, fmt.Errorf("STRIPE_PRO_MONTHLY_PRICE_ID is required when STRIPE_SECRET_KEY is set")
	}

	return cfg, nil
}

// AgentConfig configures the local agent: the entitlement cache, the session
// guard, and the reconciliation loop.
type AgentConfig struct {
	Env      string
	Port     int
	LogLevel string

	// Redis entitlement cache. Empty selects the in-memory store.
	RedisURL string

	// Remote authority endpoints
	StatusEndpoint   string
	IdentityEndpoint string

	// Reconciliation loop tuning
	ReconcileRetryDelay  time.Duration
	ReconcileMaxAttempts int
	TabCloseDelay        time.Duration

	// Session guard
	SessionCheckInterval time.Duration
}

func NewAgentConfig() (*AgentConfig, error) {
	_ = godotenv.Load()

	cfg := &AgentConfig{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("AGENT_PORT", 8089),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		RedisURL: getEnv("REDIS_URL", ""),

		StatusEndpoint:   getEnv("STATUS_ENDPOINT", ""),
		IdentityEndpoint: getEnv("IDENTITY_ENDPOINT", ""),

		ReconcileRetryDelay:  getEnvDuration("RECONCILE_RETRY_DELAY", 10*time.Second),
		ReconcileMaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 30),
		TabCloseDelay:        getEnvDuration("TAB_CLOSE_DELAY", 3*time.Second),

		SessionCheckInterval: getEnvDuration("SESSION_CHECK_INTERVAL", time.Minute),
	}

	// Required
	if cfg.StatusEndpoint == "" {
		return nil, fmt.Errorf("STATUS_ENDPOINT is required")
	}
	if cfg.ReconcileMaxAttempts < 1 {
		return nil, fmt.Errorf("RECONCILE_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
