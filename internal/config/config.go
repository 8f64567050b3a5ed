package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the environment-driven Config and the polling budgets.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPollingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	// NodeID seeds snowflake ids; every running process needs its own.
	NodeID      int64
	// SeedCatalog inserts the demo catalog on boot.
	SeedCatalog bool

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Firestore FirestoreConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig

	// InventoryBackend selects where remaining credit counts live: "local" or "stripe".
	InventoryBackend string
	// DocumentBackend selects where checkout sessions and purchase requests are mirrored: "sql" or "firestore".
	DocumentBackend string
	// TriggerBackend selects how purchase requests reach the reconciler: "inprocess" or "kafka".
	TriggerBackend string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type FirestoreConfig struct {
	ProjectID string
}

type SchedulerConfig struct {
	Enabled          bool
	RunInterval      time.Duration
	BatchSize        int
	PendingThreshold time.Duration
	EnabledJobs      []string
}

type RateLimitConfig struct {
	Enabled           bool
	CheckoutUserRate  float64
	CheckoutUserBurst int
	ReconcileLockTTL  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "carbonmarket"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("NODE_ID", 1)),
		SeedCatalog:       getenvBool("SEED_CATALOG", false),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "carbonmarket"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "carbonmarket.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_PURCHASE_TOPIC", "purchase-requests"),
			GroupID: getenv("KAFKA_GROUP_ID", "carbonmarket-reconciler"),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Firestore: FirestoreConfig{
			ProjectID: strings.TrimSpace(getenv("FIRESTORE_PROJECT_ID", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", false),
			CheckoutUserRate:  getenvFloat("RATE_LIMIT_CHECKOUT_USER_RATE", 0.5),
			CheckoutUserBurst: getenvInt("RATE_LIMIT_CHECKOUT_USER_BURST", 5),
			ReconcileLockTTL:  time.Duration(getenvInt("RECONCILE_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:      time.Duration(getenvInt("SCHEDULER_RUN_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:        getenvInt("SCHEDULER_BATCH_SIZE", 50),
			PendingThreshold: time.Duration(getenvInt("SCHEDULER_PENDING_THRESHOLD_SECONDS", 120)) * time.Second,
			EnabledJobs:      splitList(getenv("SCHEDULER_ENABLED_JOBS", "")),
		},
		InventoryBackend: strings.ToLower(getenv("INVENTORY_BACKEND", BackendLocal)),
		DocumentBackend:  strings.ToLower(getenv("DOCUMENT_BACKEND", BackendSQL)),
		TriggerBackend:   strings.ToLower(getenv("TRIGGER_BACKEND", BackendInProcess)),
	}

	return cfg
}

const (
	BackendLocal     = "local"
	BackendStripe    = "stripe"
	BackendSQL       = "sql"
	BackendFirestore = "firestore"
	BackendInProcess = "inprocess"
	BackendKafka     = "kafka"
)

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
