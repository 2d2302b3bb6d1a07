package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"ai-slidegen-be/pkg/pipeline"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Pipeline pipeline.Config
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	AgentsBaseURL      string
}

type DatabaseConfig struct {
	Connection string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AgentsBaseURL:      getEnv("AGENTS_BASE_URL", "http://localhost:8089"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Pipeline: loadPipeline(),
	}
}

// loadPipeline starts from the pipeline defaults and applies env overrides.
// The result is passed down by value; stages never read process env directly.
func loadPipeline() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.PassThreshold = getEnvAsFloat("QA_PASS_THRESHOLD", cfg.PassThreshold)
	cfg.MaxQAIterations = getEnvAsInt("QA_MAX_ITERATIONS", cfg.MaxQAIterations)
	cfg.QAConcurrency = getEnvAsInt("QA_CONCURRENCY", cfg.QAConcurrency)
	cfg.MaxRetries = getEnvAsInt("STAGE_MAX_RETRIES", cfg.MaxRetries)
	cfg.StageTimeout = getEnvAsDuration("STAGE_TIMEOUT", cfg.StageTimeout)
	cfg.RetryBackoffInitial = getEnvAsDuration("STAGE_RETRY_BACKOFF_INITIAL", cfg.RetryBackoffInitial)
	cfg.RetryBackoffMax = getEnvAsDuration("STAGE_RETRY_BACKOFF_MAX", cfg.RetryBackoffMax)
	cfg.PollInterval = getEnvAsDuration("STAGE_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollMaxInterval = getEnvAsDuration("STAGE_POLL_MAX_INTERVAL", cfg.PollMaxInterval)
	cfg.PollCeiling = getEnvAsDuration("STAGE_POLL_CEILING", cfg.PollCeiling)
	cfg.RetentionWindow = getEnvAsDuration("SESSION_RETENTION_WINDOW", cfg.RetentionWindow)
	cfg.EventGracePeriod = getEnvAsDuration("EVENT_GRACE_PERIOD", cfg.EventGracePeriod)
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
