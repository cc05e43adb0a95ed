package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/services"
	"github.com/joho/godotenv"
)

const (
	dbSecretName     = "storefront/DB_CREDENTIALS"
	paypalSecretName = "storefront/PAYPAL_CREDENTIALS"

	CatalogPostgres = "postgres"
	CatalogDynamoDB = "dynamodb"
)

type DatabaseConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
	SSLMode  string
	TimeZone string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone,
	)
}

func (d DatabaseConfig) validate() error {
	if d.User == "" || d.Password == "" || d.Name == "" || d.Host == "" {
		return errors.New("database config incomplete")
	}
	return nil
}

type PayPalConfig struct {
	Mode          string
	BaseURL       string
	IPNURL        string
	ClientID      string
	ClientSecret  string
	BusinessEmail string
	Timeout       time.Duration
}

// Config holds all configuration for the checkout service.
type Config struct {
	AppEnv   string
	Port     string
	Database DatabaseConfig
	PayPal   PayPalConfig

	Currency  string
	JWTSecret string

	CatalogBackend      string
	DynamoProductsTable string
	RedisAddr           string
	RedisPassword       string
	CatalogCacheTTL     time.Duration

	KafkaBrokers     []string
	OrderEventsTopic string
	OrderSNSTopicARN string
	IPNQueueURL      string

	NotificationWorkers int
	NotificationTimeout time.Duration

	AllowedOrigins     []string
	CloudWatchEnabled  bool
	CloudWatchLogGroup string
	MetricsNamespace   string
	UseSecrets         bool
}

// SecretSource supplies credential overrides.
type SecretSource interface {
	GetJSONSecret(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from the environment (and .env when
// present), with optional Secrets Manager override.
func LoadConfig(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()
	if cfg.UseSecrets {
		awsCfg, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		applySecrets(ctx, cfg, awspkg.NewSecretsClient(awsCfg))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseConfig is the subset ledgerctl needs.
func LoadDatabaseConfig(ctx context.Context) (DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := fromEnv()
	if cfg.UseSecrets {
		if awsCfg, err := awspkg.LoadAWSConfig(ctx); err == nil {
			applySecrets(ctx, cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}
	return cfg.Database, cfg.Database.validate()
}

func fromEnv() *Config {
	mode := strings.ToLower(getEnv("PAYPAL_MODE", "sandbox"))
	baseURL, ipnURL := services.PayPalSandboxBaseURL, services.PayPalSandboxIPNURL
	if mode == "live" {
		baseURL, ipnURL = services.PayPalLiveBaseURL, services.PayPalLiveIPNURL
	}

	return &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "3000"),
		Database: DatabaseConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     os.Getenv("POSTGRES_DB"),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Hong_Kong"),
		},
		PayPal: PayPalConfig{
			Mode:          mode,
			BaseURL:       getEnv("PAYPAL_API_URL", baseURL),
			IPNURL:        getEnv("PAYPAL_IPN_URL", ipnURL),
			ClientID:      os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret:  os.Getenv("PAYPAL_CLIENT_SECRET"),
			BusinessEmail: getEnv("PAYPAL_BUSINESS_EMAIL", "sb-rbbmt40742598@business.example.com"),
			Timeout:       getDuration("PAYPAL_TIMEOUT", 15*time.Second),
		},
		Currency:            strings.ToUpper(getEnv("CURRENCY", "HKD")),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CatalogBackend:      strings.ToLower(getEnv("CATALOG_BACKEND", CatalogPostgres)),
		DynamoProductsTable: getEnv("DYNAMO_PRODUCTS_TABLE", "products"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		CatalogCacheTTL:     getDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:    getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		OrderSNSTopicARN:    os.Getenv("ORDER_SNS_TOPIC_ARN"),
		IPNQueueURL:         os.Getenv("IPN_QUEUE_URL"),
		NotificationWorkers: getInt("NOTIFICATION_WORKERS", 32),
		NotificationTimeout: getDuration("NOTIFICATION_TIMEOUT", 30*time.Second),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/storefront/checkout"),
		MetricsNamespace:    getEnv("CLOUDWATCH_NAMESPACE", "Storefront"),
		UseSecrets:          os.Getenv("AWS_USE_SECRETS") == "true",
	}
}

// applySecrets overrides credentials with any non-empty secret values.
// A missing secret leaves the environment values in place.
func applySecrets(ctx context.Context, cfg *Config, src SecretSource) {
	if m, err := src.GetJSONSecret(ctx, dbSecretName); err == nil {
		override(&cfg.Database.User, m["POSTGRES_USER"])
		override(&cfg.Database.Password, m["POSTGRES_PASSWORD"])
		override(&cfg.Database.Name, m["POSTGRES_DB"])
		override(&cfg.Database.Host, m["POSTGRES_HOST"])
		override(&cfg.Database.Port, m["POSTGRES_PORT"])
	}
	if m, err := src.GetJSONSecret(ctx, paypalSecretName); err == nil {
		override(&cfg.PayPal.ClientID, m["PAYPAL_CLIENT_ID"])
		override(&cfg.PayPal.ClientSecret, m["PAYPAL_CLIENT_SECRET"])
		override(&cfg.PayPal.BusinessEmail, m["PAYPAL_BUSINESS_EMAIL"])
		override(&cfg.JWTSecret, m["JWT_SECRET"])
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
		return errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required")
	}
	if c.PayPal.Mode != "sandbox" && c.PayPal.Mode != "live" {
		return fmt.Errorf("PAYPAL_MODE must be sandbox or live, got %q", c.PayPal.Mode)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	if c.PayPal.BusinessEmail == "" {
		return errors.New("PAYPAL_BUSINESS_EMAIL is required")
	}
	switch c.CatalogBackend {
	case CatalogPostgres:
	case CatalogDynamoDB:
		if c.DynamoProductsTable == "" {
			return errors.New("DYNAMO_PRODUCTS_TABLE is required for the dynamodb catalog")
		}
	default:
		return fmt.Errorf("unknown CATALOG_BACKEND %q", c.CatalogBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
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
