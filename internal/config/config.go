package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	WorkbookPath string
	HTTPPort     string
	LogLevel     string
	AuthLogin    string
	AuthPassword string
	SyncCacheTTL time.Duration
	LLMTimeout   time.Duration
	HistoryLimit int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		WorkbookPath: getEnv("WORKBOOK_PATH", "bookshelf.xlsx"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		AuthLogin:    getEnv("AUTH_LOGIN", ""),
		AuthPassword: getEnv("AUTH_PASSWORD", ""),
		SyncCacheTTL: time.Duration(getEnvAsInt("SYNC_CACHE_TTL_SECONDS", 3)) * time.Second,
		LLMTimeout:   time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		HistoryLimit: getEnvAsInt("RECS_HISTORY_LIMIT", 20),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
