package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	Port              string
	UploadDir         string
	BatchSize         int
	RuleCacheTTL      time.Duration
	WorkerCount       int
	IngestionAttempts int
	IngestionBackoff  time.Duration
	AllowedOrigins    []string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		BatchSize:         getEnvInt("INGEST_BATCH_SIZE", 1000),
		RuleCacheTTL:      getEnvDuration("RULE_CACHE_TTL", 5*time.Minute),
		WorkerCount:       getEnvInt("QUEUE_WORKERS", 2),
		IngestionAttempts: getEnvInt("INGEST_ATTEMPTS", 3),
		IngestionBackoff:  getEnvDuration("INGEST_BACKOFF", 5*time.Second),
		AllowedOrigins:    []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
	}
}

// InitDB opens the Postgres connection from DATABASE_URL or the discrete
// DB_* variables.
func InitDB() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "reconciliation"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	return db
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
