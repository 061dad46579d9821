package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Store selects the repository: "postgres" or "memory".
	Store string

	// JWT (verification only, tokens are issued elsewhere)
	JWTSecret string

	// Admin
	AdminUserIDs string
	AdminToken   string

	// Server
	Port            string
	CORSOrigins     string
	ShutdownTimeout time.Duration
	SentryDSN       string

	// Queues
	QueuesConfigPath   string
	ReportTaskType     string
	GroupingStrategy   string
	LeaseSweepInterval time.Duration
	TxRetryAttempts    uint

	// Messaging
	RabbitMQURL   string
	RabbitMQQueue string

	// Logging
	LogLevel         string
	LogRetentionDays int
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "moderation_queue"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Store: strings.ToLower(getEnv("STORE", "postgres")),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:            getEnv("PORT", "8080"),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		SentryDSN:       getEnv("SENTRY_DSN", ""),

		QueuesConfigPath:   getEnv("QUEUES_CONFIG_PATH", "queues.yaml"),
		ReportTaskType:     getEnv("REPORT_TASK_TYPE", "user_reports"),
		GroupingStrategy:   getEnv("GROUPING_STRATEGY", "item"),
		LeaseSweepInterval: parseDuration(getEnv("LEASE_SWEEP_INTERVAL", "1m"), time.Minute),
		TxRetryAttempts:    uint(parseInt(getEnv("TX_RETRY_ATTEMPTS", "5"), 5)),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "moderation.reports"),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// AdminUserIDList splits ADMIN_USER_IDS on commas.
func (c *Config) AdminUserIDList() []string {
	return parseCSV(c.AdminUserIDs)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
