package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Pricing   PricingConfig
	Render    RenderConfig
	RateLimit RateLimitConfig
	Stripe    StripeConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port         string
	WebhookPort  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type TopicConfig struct {
	DesignEvents string
	OrderEvents  string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type PricingConfig struct {
	FlatShippingFee       int64
	FreeShippingThreshold int64
}

type RenderConfig struct {
	MaxAttempts  int
	PollInterval time.Duration
	ClaimTimeout time.Duration
}

type RateLimitConfig struct {
	OrderCreateLimit   int64
	WebhookIngestLimit int64
	Window             time.Duration
}

type StripeConfig struct {
	WebhookSecret string
}

type AuthConfig struct {
	JWTSecret  string
	SlipSecret string
}

func Load() *Config {
	kafkaEnabled := getEnvBool("KAFKA_ENABLED", true)
	mockMode := getEnvBool("KAFKA_MOCK_MODE", false)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			WebhookPort:  getEnv("WEBHOOK_PORT", ":8081"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "printmill_user"),
			Password:     getEnv("DB_PASSWORD", "printmill_pass"),
			Database:     getEnv("DB_NAME", "printmill"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID:  getEnv("KAFKA_GROUP_ID", "printmill-group"),
			Enabled:  kafkaEnabled,
			MockMode: mockMode,
			Topics: TopicConfig{
				DesignEvents: getEnv("KAFKA_TOPIC_DESIGN_EVENTS", "printmill.designs.events"),
				OrderEvents:  getEnv("KAFKA_TOPIC_ORDER_EVENTS", "printmill.orders.events"),
			},
		},
		Pricing: PricingConfig{
			FlatShippingFee:       int64(getEnvInt("FLAT_SHIPPING_FEE", 690)),
			FreeShippingThreshold: int64(getEnvInt("FREE_SHIPPING_THRESHOLD", 8000)),
		},
		Render: RenderConfig{
			MaxAttempts:  getEnvInt("RENDER_MAX_ATTEMPTS", 3),
			PollInterval: time.Duration(getEnvInt("RENDER_POLL_INTERVAL_MS", 500)) * time.Millisecond,
			ClaimTimeout: time.Duration(getEnvInt("RENDER_CLAIM_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			OrderCreateLimit:   int64(getEnvInt("RATE_LIMIT_ORDER_CREATE", 30)),
			WebhookIngestLimit: int64(getEnvInt("RATE_LIMIT_WEBHOOK_INGEST", 300)),
			Window:             time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		Stripe: StripeConfig{
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "printmill-dev-secret"),
			SlipSecret: getEnv("SLIP_SECRET", "printmill-slip-secret"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
