package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	ServiceName  string
	OTELEndpoint string
	Port         string

	// Payment processor API
	PaymentAPIURL string
	AccessToken   string

	// Webhook signature verification
	SigningSecret     string
	SignatureEnforced bool

	// Deduplication of repeated notifications
	DedupEnabled bool
	DedupWindow  time.Duration

	// When true the webhook responds immediately and processes in the
	// background; when false all work completes before the response.
	// One mode per deployment.
	ProcessAsync bool

	// Downstream automation sink for approved-payment confirmations
	SinkURL string

	// Checkout preference defaults
	SiteBaseURL     string
	NotificationURL string

	HTTPTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ServiceName:       "webhook-service",
		OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Port:              getEnv("PORT", "8080"),
		PaymentAPIURL:     getEnv("PAYMENT_API_URL", "https://api.mercadopago.com"),
		AccessToken:       getEnv("ACCESS_TOKEN", ""),
		SigningSecret:     getEnv("WEBHOOK_SIGNING_SECRET", ""),
		SignatureEnforced: getEnvBool("SIGNATURE_ENFORCED", false),
		DedupEnabled:      getEnvBool("DEDUP_ENABLED", true),
		DedupWindow:       getEnvDuration("DEDUP_WINDOW", 10*time.Minute),
		ProcessAsync:      getEnvBool("PROCESS_ASYNC", false),
		SinkURL:           getEnv("DOWNSTREAM_SINK_URL", ""),
		SiteBaseURL:       getEnv("SITE_BASE_URL", ""),
		NotificationURL:   getEnv("NOTIFICATION_URL", ""),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
