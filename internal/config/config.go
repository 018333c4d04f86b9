package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	LLMProvider    string
	GeminiAPIKey   string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	LLMModel       string
	LLMTemperature float32
	HistoryWindow  int
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	LogFile        string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

var AppConfig Config

// LoadConfig populates AppConfig from the environment (and .env when present).
// A missing model credential is returned as an error; callers treat it as fatal.
func LoadConfig() error {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		LLMTemperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.5),
		HistoryWindow:  getEnvAsInt("HISTORY_WINDOW", 20),
		DatabaseURL:    getEnv("DATABASE_URL", getEnv("MONGODB_URI", "cura_ai.db")),
		HTTPPort:       getEnv("HTTP_PORT", getEnv("PORT", "3000")),
		LogLevel:       strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		LogFile:        getEnv("LOG_FILE", ""),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MaxBodyBytes:   int64(getEnvAsInt("MAX_BODY_BYTES", 50<<20)),
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY environment variable is required")
		}
		cfg.LLMModel = getEnv("LLM_MODEL", "gemini-2.5-flash")
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Config{}, errors.New("OPENAI_API_KEY environment variable is required")
		}
		cfg.LLMModel = getEnv("LLM_MODEL", "gpt-4o-mini")
	default:
		return Config{}, errors.New("LLM_PROVIDER must be one of: gemini, openai")
	}

	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = 0
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
