package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
	}

	// Database configuration
	Database struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Retries  int
	}

	// Redis is optional; an empty URL keeps room fan-out in-process
	Redis struct {
		URL     string
		Channel string
	}

	// Realtime gateway settings
	Realtime struct {
		SendBuffer       int
		MaxMessageSize   int64
		MessagesPerSec   float64
		MessageBurst     int
		PersistTimeout   time.Duration
		AllowedOrigins   []string
		InstanceID       string
		ClassifierKind   string
		BreakerThreshold uint
		BreakerRetry     time.Duration
	}

	// Moderation settings
	Moderation struct {
		LexiconPath         string
		KeywordsPath        string
		SevereThreshold     int
		ModerateThreshold   int
		CounsellorDirectory map[string]string
		AlertListLimit      int
	}

	// Retention settings for ephemeral chat messages
	Retention struct {
		MessageTTL time.Duration
		Cron       string
		Enabled    bool
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		MaxBodySize    int64
		AnonSaltKey    string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability configuration
	Observability struct {
		ServiceName    string
		TracingEnabled bool
		OpenAPISchema  string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

	// Database config
	cfg.Database.Driver = getEnvString("DB_DRIVER", "postgres")
	cfg.Database.DSN = getEnvString("DATABASE_DSN", "")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "mindpalace")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Retries = getEnvInt("DB_CONNECT_RETRIES", 5)

	// Redis config
	cfg.Redis.URL = getEnvString("REDIS_URL", "")
	cfg.Redis.Channel = getEnvString("REDIS_ROOM_CHANNEL", "mindpalace:rooms")

	// Realtime config
	cfg.Realtime.SendBuffer = getEnvInt("WS_SEND_BUFFER", 256)
	cfg.Realtime.MaxMessageSize = getEnvInt64("WS_MAX_MESSAGE_SIZE", 64<<10) // 64KB
	cfg.Realtime.MessagesPerSec = getEnvFloat("WS_MESSAGES_PER_SEC", 5)
	cfg.Realtime.MessageBurst = getEnvInt("WS_MESSAGE_BURST", 20)
	cfg.Realtime.PersistTimeout = getEnvDuration("WS_PERSIST_TIMEOUT", 5*time.Second)
	cfg.Realtime.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Realtime.InstanceID = getEnvString("INSTANCE_ID", "")
	cfg.Realtime.ClassifierKind = getEnvString("GATEWAY_CLASSIFIER", "keyword")
	cfg.Realtime.BreakerThreshold = uint(getEnvInt("STORE_BREAKER_THRESHOLD", 5))
	cfg.Realtime.BreakerRetry = getEnvDuration("STORE_BREAKER_RETRY", 30*time.Second)

	// Moderation config
	cfg.Moderation.LexiconPath = getEnvString("LEXICON_PATH", "")
	cfg.Moderation.KeywordsPath = getEnvString("KEYWORDS_PATH", "")
	cfg.Moderation.SevereThreshold = getEnvInt("SEVERE_THRESHOLD", 9)
	cfg.Moderation.ModerateThreshold = getEnvInt("MODERATE_THRESHOLD", 5)
	cfg.Moderation.CounsellorDirectory = getEnvStringMap("COUNSELLOR_DIRECTORY")
	cfg.Moderation.AlertListLimit = getEnvInt("ALERT_LIST_LIMIT", 50)

	// Retention config
	cfg.Retention.MessageTTL = getEnvDuration("MESSAGE_TTL", 7*24*time.Hour)
	cfg.Retention.Cron = getEnvString("RETENTION_CRON", "*/15 * * * *")
	cfg.Retention.Enabled = getEnvBool("RETENTION_ENABLED", true)

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB
	cfg.Security.AnonSaltKey = getEnvString("ANON_SALT_KEY", "ANON_ID_SALT")

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Observability config
	cfg.Observability.ServiceName = getEnvString("OTEL_SERVICE_NAME", "mindpalace-realtime")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.OpenAPISchema = getEnvString("OPENAPI_SCHEMA_PATH", "")

	return cfg
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// getEnvStringMap parses "k1=v1,k2=v2". Malformed pairs are skipped.
func getEnvStringMap(key string) map[string]string {
	result := make(map[string]string)
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return result
	}
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return result
}
