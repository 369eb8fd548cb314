// Package config reads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is shared by the API and the notification worker.
type Config struct {
	Port     string
	RunLocal bool
	LogLevel string

	OrdersTable           string
	IdempotencyTable      string
	NotificationsQueueURL string
	IdempotencyTTL        time.Duration
	MetricsNamespace      string

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string
	BreakerTimeout      time.Duration

	DeliveryETA        time.Duration
	NotifyMaxInFlight  int
	NotifyDrainTimeout time.Duration
	EmailFrom          string
}

// LoadDotEnv loads files (default ".env") into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the environment and applies defaults.
func Load() (Config, error) {
	ttl, err := durationEnv("IDEMPOTENCY_TTL", 48*time.Hour)
	if err != nil {
		return Config{}, err
	}
	breaker, err := durationEnv("PAYMENT_BREAKER_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	eta, err := durationEnv("DELIVERY_ETA", 45*time.Minute)
	if err != nil {
		return Config{}, err
	}
	inFlight, err := intEnv("NOTIFY_MAX_IN_FLIGHT", 32)
	if err != nil {
		return Config{}, err
	}
	drain, err := durationEnv("NOTIFY_DRAIN_TIMEOUT", 1500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:     envOr("PORT", "8080"),
		RunLocal: os.Getenv("RUN_LOCAL") == "true",
		LogLevel: envOr("LOG_LEVEL", "info"),

		OrdersTable:           os.Getenv("ORDERS_TABLE"),
		IdempotencyTable:      os.Getenv("IDEMPOTENCY_TABLE"),
		NotificationsQueueURL: os.Getenv("NOTIFICATIONS_QUEUE_URL"),
		IdempotencyTTL:        ttl,
		MetricsNamespace:      envOr("METRICS_NAMESPACE", "BiteBuddy/Orders"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     envOr("PAYMENT_CURRENCY", "inr"),
		BreakerTimeout:      breaker,

		DeliveryETA:        eta,
		NotifyMaxInFlight:  inFlight,
		NotifyDrainTimeout: drain,
		EmailFrom:          os.Getenv("EMAIL_FROM"),
	}
	return cfg, nil
}

type setting struct {
	key   string
	value string
}

// RequireAPI checks the settings the HTTP API cannot start without.
func (c Config) RequireAPI() error {
	return require(
		setting{"ORDERS_TABLE", c.OrdersTable},
		setting{"IDEMPOTENCY_TABLE", c.IdempotencyTable},
		setting{"STRIPE_SECRET_KEY", c.StripeSecretKey},
		setting{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
	)
}

// RequireWorker checks the settings the notification worker needs.
func (c Config) RequireWorker() error {
	return require(setting{"EMAIL_FROM", c.EmailFrom})
}

func require(settings ...setting) error {
	for _, s := range settings {
		if s.value == "" {
			return fmt.Errorf("%s is required", s.key)
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
