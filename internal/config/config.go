package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// LLM boundary (OpenAI-compatible, e.g. ProxyAPI)
	APIKey         string
	BaseURL        string
	LLMModel       string
	EmbeddingModel string
	LLMTemperature float32

	// Pipeline knobs
	HistoryLimit int
	RAGEnabled   bool
	RAGTopK      int
	RAGMaxChars  int

	// Paths
	PromptsDir string
	DocsDir    string

	// Server
	DatabaseURL string
	HTTPPort    string
	JWTSecret   string

	// Green API (WhatsApp), optional
	GreenAPIURL        string
	GreenAPIInstanceID string
	GreenAPIToken      string
}

// Load reads configuration from the environment, picking up a .env file
// if one exists. A missing API key is deliberately not fatal here: the
// LLM client reports it on first use.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		APIKey:         getEnv("PROXYAPI_API_KEY", ""),
		BaseURL:        getEnv("PROXYAPI_BASE_URL", "https://openai.api.proxyapi.ru/v1"),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),

		HistoryLimit: getEnvAsInt("HISTORY_LIMIT", 12),
		RAGEnabled:   getEnvAsBool("ENABLE_RAG", true),
		RAGTopK:      getEnvAsInt("RAG_TOP_K", 2),
		RAGMaxChars:  getEnvAsInt("RAG_MAX_CHARS", 4000),

		PromptsDir: getEnv("PROMPTS_DIR", "data/prompts"),
		DocsDir:    getEnv("DOCS_DIR", "data/docs"),

		DatabaseURL: getEnv("DATABASE_URL", "ainova_assistant.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		GreenAPIURL:        getEnv("GREEN_API_URL", "https://api.green-api.com"),
		GreenAPIInstanceID: getEnv("GREEN_API_INSTANCE_ID", ""),
		GreenAPIToken:      getEnv("GREEN_API_TOKEN", ""),
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

func getEnvAsFloat(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return defaultValue
}
