package config

import (
	"strconv"
	"strings"

	"github.com/nimbusbilling/subrelay/internal/pkg/env"
)

func envInt(key string, def int) int {
	n, err := strconv.Atoi(env.GetEnv(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return n
}

// Config carries every runtime setting the service needs. It is built once
// in main and handed to the pieces that need it; nothing below this struct
// reads the process environment on its own.
type Config struct {
	AppHost string
	AppPort string

	// Upstream payment provider.
	StripeAPIKey        string
	StripeWebhookSecret string

	// Downstream destinations.
	SalesforceBasketURI string
	BasketAPIKey        string
	FirefoxNotifyURI    string

	// Management API auth.
	APIAuthKey string

	// Account record store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Webhook audit database.
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Operational surface.
	MetricsUser     string
	MetricsPassword string
}

// Load reads the environment (after env.SetupEnvFile) into a Config.
func Load() *Config {
	return &Config{
		AppHost: env.GetEnv("APP_HOST", "localhost"),
		AppPort: env.GetEnv("APP_PORT", "5000"),

		StripeAPIKey:        env.GetEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),

		SalesforceBasketURI: strings.TrimSpace(env.GetEnv("SALESFORCE_BASKET_URI", "")),
		BasketAPIKey:        strings.TrimSpace(env.GetEnv("BASKET_API_KEY", "")),
		FirefoxNotifyURI:    strings.TrimSpace(env.GetEnv("FIREFOX_NOTIFY_URI", "")),

		APIAuthKey: env.GetEnv("API_AUTH_KEY", ""),

		RedisAddr:     env.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: env.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		DBUser:     env.GetEnv("DB_USER", "subrelay"),
		DBPassword: env.GetEnv("DB_PASSWORD", "subrelay"),
		DBHost:     env.GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:     env.GetEnv("DB_PORT", "3306"),
		DBName:     env.GetEnv("DB_NAME", "subrelay_db"),

		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	}
}
