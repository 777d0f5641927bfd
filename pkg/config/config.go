package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string

	// AES key for credential encryption at rest
	EncryptionKey string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GoogleCredentials  string

	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenantID     string
	MicrosoftRedirectURI  string
	GraphNotificationURL  string

	BlobDir string

	SyncWorkers        int
	SyncQueueSize      int
	SyncLease          time.Duration
	SyncPageSize       int
	SyncMaxRetries     int
	SyncBackoffBase    time.Duration
	TokenRefreshMargin time.Duration

	// Bounded resync window used on first sync and when a cursor expires
	BackfillWindow      time.Duration
	BackfillMaxMessages int

	PollSchedule         string
	WatchRenewalSchedule string
	WatchRenewalMargin   time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "email_assistant"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/oauth/callback"),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),
		MicrosoftRedirectURI:  getEnv("MICROSOFT_REDIRECT_URI", "http://localhost:8080/oauth/callback"),
		GraphNotificationURL:  getEnv("GRAPH_NOTIFICATION_URL", ""),

		BlobDir: getEnv("BLOB_DIR", "./data/attachments"),

		SyncWorkers:        getEnvInt("SYNC_WORKERS", 5),
		SyncQueueSize:      getEnvInt("SYNC_QUEUE_SIZE", 1000),
		SyncLease:          getEnvDuration("SYNC_LEASE", 10*time.Minute),
		SyncPageSize:       getEnvInt("SYNC_PAGE_SIZE", 100),
		SyncMaxRetries:     getEnvInt("SYNC_MAX_RETRIES", 5),
		SyncBackoffBase:    getEnvDuration("SYNC_BACKOFF_BASE", 2*time.Second),
		TokenRefreshMargin: getEnvDuration("TOKEN_REFRESH_MARGIN", 5*time.Minute),

		BackfillWindow:      getEnvDuration("SYNC_BACKFILL_WINDOW", 90*24*time.Hour),
		BackfillMaxMessages: getEnvInt("SYNC_BACKFILL_MAX_MESSAGES", 1000),

		PollSchedule:         getEnv("SYNC_POLL_SCHEDULE", "@every 5m"),
		WatchRenewalSchedule: getEnv("WATCH_RENEWAL_SCHEDULE", "@every 1h"),
		WatchRenewalMargin:   getEnvDuration("WATCH_RENEWAL_MARGIN", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
