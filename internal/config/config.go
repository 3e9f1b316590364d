package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// JWT configuration
	JWTSecret string

	// internal secret used for communication between servers
	InternalSecret string

	FrontendAddress string

	// Live editing
	AutoSaveDebounce time.Duration
	WorkerPoolSize   int
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Warn().Err(err).Msg("Error loading .env file")
		}
	}

	AppConfig = Config{
		ServerPort:       getEnv("PORT", "8080"),
		Environment:      getEnv("ENV", "development"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "collab_docs"),
		RedisAddress:     getEnv("REDIS_ADDRESS", "localhost:6379"),
		JWTSecret:        getEnv("JWT_SECRET", "collab-jwt-secret"),
		InternalSecret:   getEnv("INTERNAL_SECRET", "collab-internal-secret"),
		FrontendAddress:  getEnv("FRONTEND_ADDRESS", "https://production-frontend.com"),
		AutoSaveDebounce: time.Duration(getEnvInt("AUTOSAVE_DEBOUNCE_MS", 2000)) * time.Millisecond,
		WorkerPoolSize:   getEnvInt("WORKER_POOL_SIZE", 4),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
