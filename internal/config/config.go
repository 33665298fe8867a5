package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Redis   RedisConfig
	Ai      AIConfig
	Agent   AgentConfig
	Keys    APIKeys
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
}

type BackendConfig struct {
	BaseURL        string
	InternalAPIKey string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	LLMProvider   string // "ollama", "openai"
	LLMModel      string
	LLMBaseURL    string
	LLMAPIKey     string
	Temperature   float64
	TokenizerName string // tiktoken encoding fallback
}

type AgentConfig struct {
	StepLimit          int // max phase transitions per turn
	MemoryWindowSize   int // messages kept when building prompts
	TraceCap           int
	SnapshotTTLSeconds int
}

type APIKeys struct {
	JWTSecret string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/agent.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_API_URL", "http://localhost:8000"),
			InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "openai"),
			LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
			LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
			LLMAPIKey:     getEnv("LLM_API_KEY", ""),
			Temperature:   getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			TokenizerName: getEnv("TOKENIZER_ENCODING", "cl100k_base"),
		},
		Agent: AgentConfig{
			StepLimit:          getEnvAsInt("GRAPH_RECURSION_LIMIT", 25),
			MemoryWindowSize:   getEnvAsInt("MEMORY_WINDOW_SIZE", 15),
			TraceCap:           getEnvAsInt("TOOL_TRACE_CAP", 100),
			SnapshotTTLSeconds: getEnvAsInt("REDIS_SESSION_TTL_SECONDS", 2100),
		},
		Keys: APIKeys{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
	}
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
