package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Chip              ChipConfig
	Reconcile         ReconcileConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName   string
	PublicBaseURL string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type ChipConfig struct {
	SecretKey              string
	BrandID                string
	BaseURL                string
	HTTPTimeout            time.Duration
	PollTimeout            time.Duration
	PaymentMethodWhitelist []string
	DueStrict              bool
	DueStrictTiming        time.Duration
	SendReceipt            bool
	CreatorAgent           string
}

type ReconcileConfig struct {
	LockBackend  string
	LockTimeout  time.Duration
	LockLease    time.Duration
	ReceiptURL   string
	CancelURL    string
	StaleAfter   time.Duration
	JobBatchSize int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	lockBackend := strings.ToLower(getEnv("RECONCILE_LOCK_BACKEND", LockBackendMemory))
	if lockBackend != LockBackendMemory && lockBackend != LockBackendRedis {
		return nil, errors.New("RECONCILE_LOCK_BACKEND must be memory or redis")
	}

	return &Config{
		App: AppConfig{
			ServiceName:   getEnv("APP_SERVICE_NAME", "chip-donations-service"),
			PublicBaseURL: strings.TrimRight(getEnv("APP_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Chip: ChipConfig{
			SecretKey:              strings.TrimSpace(getEnv("CHIP_SECRET_KEY", "")),
			BrandID:                strings.TrimSpace(getEnv("CHIP_BRAND_ID", "")),
			BaseURL:                strings.TrimRight(getEnv("CHIP_BASE_URL", "https://gate.chip-in.asia/api/v1"), "/"),
			HTTPTimeout:            getSecondsEnv("CHIP_HTTP_TIMEOUT_SECONDS", 15*time.Second),
			PollTimeout:            getSecondsEnv("CHIP_POLL_TIMEOUT_SECONDS", 10*time.Second),
			PaymentMethodWhitelist: getListEnv("CHIP_PAYMENT_METHOD_WHITELIST"),
			DueStrict:              getBoolEnv("CHIP_DUE_STRICT", false),
			DueStrictTiming:        getMinutesEnv("CHIP_DUE_STRICT_TIMING_MINUTES", 60*time.Minute),
			SendReceipt:            getBoolEnv("CHIP_PURCHASE_SEND_RECEIPT", false),
			CreatorAgent:           getEnv("CHIP_CREATOR_AGENT", "ms-go-chip-donations"),
		},
		Reconcile: ReconcileConfig{
			LockBackend:  lockBackend,
			LockTimeout:  getSecondsEnv("RECONCILE_LOCK_TIMEOUT_SECONDS", 10*time.Second),
			LockLease:    getSecondsEnv("RECONCILE_LOCK_LEASE_SECONDS", 30*time.Second),
			ReceiptURL:   getEnv("RECONCILE_RECEIPT_URL", "http://localhost:3000/donation-receipt"),
			CancelURL:    getEnv("RECONCILE_CANCEL_URL", "http://localhost:3000/donation-cancel"),
			StaleAfter:   getMinutesEnv("RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize: int32(getIntEnv("RECONCILE_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
