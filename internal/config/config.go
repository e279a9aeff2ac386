package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type GatewayConfig struct {
	BaseURL     string
	AccessToken string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type Config struct {
	AppEnv   string
	HTTPPort int
	BaseURL  string

	DB      DBConfig
	Gateway GatewayConfig
	SMTP    SMTPConfig

	KafkaBrokerURL          string
	KafkaPaymentStatusTopic string

	MigrationsPath     string
	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// Missing .env is fine when variables are set by the environment.
		_ = godotenv.Load()
	}

	cfg := &Config{}

	cfg.AppEnv = getEnvOrDefault("APP_ENV", "development")
	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	cfg.BaseURL = strings.TrimSuffix(getEnvOrDefault("BASE_URL", "http://localhost:8080"), "/")

	cfg.DB.Host = getEnvOrDefault("CHECKOUT_DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("CHECKOUT_DB_PORT", 5432)
	cfg.DB.User = getEnvOrDefault("CHECKOUT_DB_USER", "user")
	cfg.DB.Password = getEnvOrDefault("CHECKOUT_DB_PASSWORD", "password")
	cfg.DB.Name = getEnvOrDefault("CHECKOUT_DB_NAME", "checkout_db")
	cfg.DB.SSLMode = getEnvOrDefault("CHECKOUT_DB_SSLMODE", "disable")

	cfg.Gateway.BaseURL = getEnvOrDefault("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com")
	cfg.Gateway.AccessToken = os.Getenv("MERCADOPAGO_ACCESS_TOKEN")
	if cfg.AppEnv == "production" && cfg.Gateway.AccessToken == "" {
		return nil, fmt.Errorf("MERCADOPAGO_ACCESS_TOKEN must be set in production")
	}

	cfg.SMTP.Host = getEnvOrDefault("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvAsInt("SMTP_PORT", 587)
	cfg.SMTP.User = getEnvOrDefault("SMTP_USER", "")
	cfg.SMTP.Password = os.Getenv("SMTP_PASS")
	cfg.SMTP.From = getEnvOrDefault("MAIL_FROM", cfg.SMTP.User)

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaPaymentStatusTopic = getEnvOrDefault("KAFKA_PAYMENT_STATUS_TOPIC", "payment_status_updates")

	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")
	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	cfg.RateLimitRPS = getEnvAsFloat("RATE_LIMIT_RPS", 5)
	cfg.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", 10)

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

// WebhookURL is registered with the gateway as the notification target.
func (c *Config) WebhookURL() string {
	return c.BaseURL + "/api/webhook"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnvOrDefault(key, strconv.FormatFloat(defaultValue, 'f', -1, 64))
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
