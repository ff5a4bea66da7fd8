package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange group identity
	Group string

	// Tenants onboarded at startup (comma-separated IDs, e.g. "u1,u2,book-7")
	Tenants string

	// Upstream bin feed
	FeedURL        string
	FeedAPIKey     string
	FeedClientCode string
	FeedTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// AlertWebhookURL receives gap/replay/batch-failure alerts (optional).
	AlertWebhookURL string

	// SeedCash is the opening cash balance deposited for each tenant.
	SeedCash int

	// TenantDeadlineMS caps one tenant's pipeline run. 0 disables.
	TenantDeadlineMS int

	// ReplayQueueCap bounds live bins queued behind an active replay.
	ReplayQueueCap int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Group:   getEnv("EXCHANGE_GROUP", "default"),
		Tenants: getEnv("TENANTS", ""),

		FeedURL:        mustEnv("FEED_URL"),
		FeedAPIKey:     getEnv("FEED_API_KEY", ""),
		FeedClientCode: getEnv("FEED_CLIENT_CODE", ""),
		FeedTOTPSecret: getEnv("FEED_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bins.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),

		SeedCash:         getEnvInt("SEED_CASH", 1_000_000),
		TenantDeadlineMS: getEnvInt("TENANT_DEADLINE_MS", 5000),
		ReplayQueueCap:   getEnvInt("REPLAY_QUEUE_CAP", 256),
	}
}

// ParseTenants splits the TENANTS list into IDs, dropping blanks.
func (c *Config) ParseTenants() []string {
	parts := strings.Split(c.Tenants, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ids = append(ids, p)
	}
	return ids
}

// TenantDeadline returns the per-tenant pipeline deadline as a Duration.
func (c *Config) TenantDeadline() time.Duration {
	return time.Duration(c.TenantDeadlineMS) * time.Millisecond
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
