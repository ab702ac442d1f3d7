package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fjod/coffee-store/internal/repository"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	DB repository.Credentials

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	OutboxTopic  string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	PaymentMethodTypes  []string
	FrontURL            string

	GatewayTimeout     time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	StaleCheckoutAfter time.Duration
	OutboxTick         time.Duration
	RecoveryTick       time.Duration
	HealthInterval     time.Duration

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50057")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "coffee_store")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("MIGRATIONS_PATH", "internal/repository/migrations")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("OUTBOX_TOPIC", "orders-outbox")

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("STRIPE_API_URL", "")
	v.SetDefault("PAYMENT_METHOD_TYPES", "card")
	v.SetDefault("URL_FRONT", "http://localhost:3000")

	v.SetDefault("GATEWAY_TIMEOUT", 10*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("STALE_CHECKOUT_AFTER", 25*time.Hour)
	v.SetDefault("OUTBOX_TICK", time.Second)
	v.SetDefault("RECOVERY_TICK", 5*time.Minute)
	v.SetDefault("HEALTH_INTERVAL", 10*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// newViper layers defaults, an optional config file and the environment,
// in increasing priority.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort: v.GetString("HTTP_PORT"),
		GRPCPort: v.GetString("GRPC_PORT"),
		DB: repository.Credentials{
			Host:              v.GetString("DB_HOST"),
			Port:              v.GetInt("DB_PORT"),
			User:              v.GetString("DB_USER"),
			Password:          v.GetString("DB_PASSWORD"),
			DBName:            v.GetString("DB_NAME"),
			SSLMode:           v.GetString("DB_SSLMODE"),
			MigrationsDirPath: v.GetString("MIGRATIONS_PATH"),
		},
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		KafkaBrokers:        splitList(v.GetString("KAFKA_BROKERS")),
		OutboxTopic:         v.GetString("OUTBOX_TOPIC"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:        v.GetString("STRIPE_API_URL"),
		PaymentMethodTypes:  splitList(v.GetString("PAYMENT_METHOD_TYPES")),
		FrontURL:            strings.TrimRight(v.GetString("URL_FRONT"), "/"),
		GatewayTimeout:      v.GetDuration("GATEWAY_TIMEOUT"),
		RequestTimeout:      v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout:     v.GetDuration("SHUTDOWN_TIMEOUT"),
		StaleCheckoutAfter:  v.GetDuration("STALE_CHECKOUT_AFTER"),
		OutboxTick:          v.GetDuration("OUTBOX_TICK"),
		RecoveryTick:        v.GetDuration("RECOVERY_TICK"),
		HealthInterval:      v.GetDuration("HEALTH_INTERVAL"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
	}
	return cfg, nil
}

// validateServe checks what serve needs beyond the database.
func (c *Config) validateServe() error {
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
