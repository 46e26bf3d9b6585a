package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// ErrMissingJWTSecret is returned when the API would start without a signing key.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

const (
	// DefaultMaxUploadSize is the declared-size ceiling for one recording (100 MiB).
	DefaultMaxUploadSize int64 = 100 * 1024 * 1024
)

type Config struct {
	HTTPAddr      string
	PublicAPIBase string
	JWTSecret     string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPass     string
	DBName     string
	SQLitePath string

	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	SessionBackend string

	Storage StorageConfig

	MaxUploadSize        int64
	UploadSessionTTL     time.Duration
	FinalizeLockTTL      time.Duration
	FinalizeWaitInterval time.Duration

	RabbitMQURL      string
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPass     string
	RabbitMQVhost    string
	RabbitMQPrefetch int

	WorkerConcurrency  int
	WorkerRate         float64
	WorkerBurst        int
	CleanupRetryMax    int
	CleanupRetryDelays []time.Duration

	SMTP SMTPConfig

	LogLevel  string
	LogFormat string
}

// SMTPConfig holds outgoing mail settings for video-ready notifications.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	From     string
	TLS      bool
	StartTLS bool
}

// Enabled reports whether every field needed to send mail is set.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != "" && c.User != "" && c.Pass != "" && c.From != ""
}

// ValidateAPI checks the settings the HTTP server cannot run without.
func (c Config) ValidateAPI() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// InitConfig loads .env (when present) and reads the environment into a Config.
func InitConfig() Config {
	_ = godotenv.Load()

	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	retryDelays := getEnvDurationList(
		"CLEANUP_RETRY_DELAYS",
		[]time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute},
	)

	maxUpload := getEnvInt64("MAX_UPLOAD_SIZE", DefaultMaxUploadSize)
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}

	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8000"),
		PublicAPIBase: strings.TrimRight(getEnv("PUBLIC_API_BASE", ""), "/"),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPass:     getEnv("DB_PASS", "root"),
		DBName:     getEnv("DB_NAME", "trainai"),
		SQLitePath: getEnv("SQLITE_PATH", "trainai.db"),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "redis")),

		Storage: initStorageConfig(),

		MaxUploadSize:        maxUpload,
		UploadSessionTTL:     getEnvDuration("UPLOAD_SESSION_TTL", 24*time.Hour),
		FinalizeLockTTL:      getEnvDuration("FINALIZE_LOCK_TTL", 2*time.Minute),
		FinalizeWaitInterval: getEnvDuration("FINALIZE_WAIT_INTERVAL", 250*time.Millisecond),

		RabbitMQURL:      rabbitURL,
		RabbitMQHost:     rabbitHost,
		RabbitMQPort:     rabbitPort,
		RabbitMQUser:     rabbitUser,
		RabbitMQPass:     rabbitPass,
		RabbitMQVhost:    rabbitVhost,
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 8),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerRate:         getEnvFloat("WORKER_RATE", 5),
		WorkerBurst:        getEnvInt("WORKER_BURST", 10),
		CleanupRetryMax:    getEnvInt("CLEANUP_RETRY_MAX", 5),
		CleanupRetryDelays: retryDelays,

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", ""),
			User:     getEnv("SMTP_USER", ""),
			Pass:     getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
			TLS:      getEnvBool("SMTP_TLS", false),
			StartTLS: getEnvBool("SMTP_STARTTLS", false),
		},

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}
}
