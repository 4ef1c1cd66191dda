package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// AppConfig holds the settings shared by every service
type AppConfig struct {
	Port        string
	StoreDriver string
	FrontendURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBroker  string
	AuditTopic   string
	AuditWorkers int
	AuditBuffer  int
	AuditGroupID string
	KafkaEnabled bool

	AWSRegion         string
	CognitoUserPoolID string
	CognitoClientID   string

	SessionTTL     time.Duration
	SessionCookie  string
	WorkspaceSize  int
	WorkspaceIdle  time.Duration
	CompanyTTL     time.Duration
	AllowedOrigins []string
}

// LoadAppConfig reads .env (when present) and the environment. defaultPort is
// used when PORT is not set.
func LoadAppConfig(defaultPort string) *AppConfig {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment")
	}

	cfg := &AppConfig{
		Port:        getEnv("PORT", defaultPort),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBroker:  getEnv("KAFKA_BROKER", "localhost:9092"),
		AuditTopic:   getEnv("AUDIT_TOPIC", "planboard-audit"),
		AuditWorkers: getEnvInt("AUDIT_WORKERS", 4),
		AuditBuffer:  getEnvInt("AUDIT_BUFFER", 1000),
		AuditGroupID: getEnv("AUDIT_GROUP_ID", "audit-service"),
		KafkaEnabled: getEnvBool("KAFKA_ENABLED", true),

		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		CognitoUserPoolID: getEnv("COGNITO_USER_POOL_ID", ""),
		CognitoClientID:   getEnv("COGNITO_CLIENT_ID", ""),

		SessionTTL:    getEnvDuration("SESSION_TTL", 8*time.Hour),
		SessionCookie: getEnv("SESSION_COOKIE", "planboard_session"),
		WorkspaceSize: getEnvInt("WORKSPACE_CACHE_SIZE", 512),
		WorkspaceIdle: getEnvDuration("WORKSPACE_IDLE_TTL", 30*time.Minute),
		CompanyTTL:    getEnvDuration("COMPANY_CACHE_TTL", 30*time.Second),
	}

	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", cfg.FrontendURL))
	return cfg
}

// RedisAddr returns host:port
func (c *AppConfig) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// UsesMemoryStore reports whether tables are kept in process
func (c *AppConfig) UsesMemoryStore() bool {
	return c.StoreDriver == StoreDriverMemory
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("Invalid integer setting, using default")
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("Invalid boolean setting, using default")
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("Invalid duration setting, using default")
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
