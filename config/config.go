package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogFormat       string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	CartDBPath string

	JWTSecret string
	TokenTTL  time.Duration

	// AdminEmail, when set, is created or promoted to admin at startup.
	AdminEmail    string
	AdminName     string
	AdminPassword string

	UploadsDir  string
	CORSOrigins []string

	RabbitMQURL     string
	EventExchange   string
	EventQueue      string
	RetryQueue      string
	DeadLetterQueue string
	Prefetch        int

	PushEndpoint    string
	PushAccessToken string
	PushTimeout     time.Duration

	OutboxInterval    time.Duration
	OutboxBatchSize   int
	NotifyMaxAttempts int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	// StrictOrderStatus rejects transitions out of delivered and cancelled.
	StrictOrderStatus bool
}

// LoadConfig reads the environment, after merging an optional .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     getEnv("DB_NAME", "shop"),
		CartDBPath: getEnv("CART_DB_PATH", "./cart.sqlite"),

		JWTSecret: getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", ""),
		TokenTTL:  getDuration("TOKEN_TTL", 24*time.Hour),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin User"),
		AdminPassword: getEnvFromFile("ADMIN_PASSWORD_FILE", "ADMIN_PASSWORD", ""),

		UploadsDir:  getEnv("UPLOADS_DIR", "./uploads"),
		CORSOrigins: getList("CORS_ORIGINS", []string{"*"}),

		RabbitMQURL:     getEnvFromFile("RABBITMQ_URL_FILE", "RABBITMQ_URL", ""),
		EventExchange:   getEnv("EVENT_EXCHANGE", "shop_events"),
		EventQueue:      getEnv("EVENT_QUEUE", "shop_notifications"),
		RetryQueue:      getEnv("RETRY_QUEUE", "shop_notifications_retry"),
		DeadLetterQueue: getEnv("DEAD_LETTER_QUEUE", "shop_notifications_dead"),
		Prefetch:        getInt("RABBITMQ_PREFETCH", 10),

		PushEndpoint:    getEnv("PUSH_ENDPOINT", "https://exp.host/--/api/v2/push/send"),
		PushAccessToken: getEnvFromFile("PUSH_ACCESS_TOKEN_FILE", "PUSH_ACCESS_TOKEN", ""),
		PushTimeout:     getDuration("PUSH_TIMEOUT", 10*time.Second),

		OutboxInterval:    getDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:   getInt("OUTBOX_BATCH_SIZE", 50),
		NotifyMaxAttempts: getInt("NOTIFY_MAX_ATTEMPTS", 8),
		RetryBaseDelay:    getDuration("RETRY_BASE_DELAY", 5*time.Second),
		RetryMaxDelay:     getDuration("RETRY_MAX_DELAY", 10*time.Minute),

		StrictOrderStatus: getBool("ORDER_STATUS_STRICT", false),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET (or JWT_SECRET_FILE) must be set")
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1, got %d", c.NotifyMaxAttempts)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
		slog.Warn("Failed to read secret file, falling back to environment", "key", fileKey)
	}
	return getEnv(envKey, defaultValue)
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
