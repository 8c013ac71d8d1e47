package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderVoyage    Provider = "voyage"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Reasoning model (Decision Oracle, summarizer, extractor)
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OracleTimeout   time.Duration

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int
	VoyageAPIKey   string

	// Heartbeat scheduler
	HeartbeatInterval time.Duration
	EnergyMax         float64
	EnergyRegen       float64
	RecentEpisodes    int

	// Background worker
	WorkerInterval    time.Duration
	WorkerBackoff     time.Duration
	NeighborhoodBatch int
	SummaryBatch      int
	ExtractBatch      int
	CleanupInterval   time.Duration

	// Status server
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "pulse"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "mind"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("PULSE_LLM_PROVIDER", "ollama")),
		LLMModel:        getEnv("PULSE_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OracleTimeout:   getEnvDuration("PULSE_ORACLE_TIMEOUT", 2*time.Minute),

		EmbedProvider:  Provider(getEnv("PULSE_EMBED_PROVIDER", "ollama")),
		EmbedModel:     getEnv("PULSE_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("PULSE_EMBED_DIMENSION", 384),
		VoyageAPIKey:   getEnv("VOYAGE_API_KEY", ""),

		HeartbeatInterval: getEnvDuration("PULSE_HEARTBEAT_INTERVAL", time.Hour),
		EnergyMax:         getEnvFloat("PULSE_ENERGY_MAX", 20),
		EnergyRegen:       getEnvFloat("PULSE_ENERGY_REGEN", 5),
		RecentEpisodes:    getEnvInt("PULSE_RECENT_EPISODES", 10),

		WorkerInterval:    getEnvDuration("PULSE_WORKER_INTERVAL", 30*time.Second),
		WorkerBackoff:     getEnvDuration("PULSE_WORKER_BACKOFF", time.Minute),
		NeighborhoodBatch: getEnvInt("PULSE_NEIGHBORHOOD_BATCH", 50),
		SummaryBatch:      getEnvInt("PULSE_SUMMARY_BATCH", 5),
		ExtractBatch:      getEnvInt("PULSE_EXTRACT_BATCH", 10),
		CleanupInterval:   getEnvDuration("PULSE_CLEANUP_INTERVAL", 6*time.Hour),

		ServerAddr: getEnv("PULSE_SERVER_ADDR", ":8422"),

		LogFile:  getEnv("PULSE_LOG_FILE", "/tmp/pulsed.log"),
		LogLevel: parseLogLevel(getEnv("PULSE_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
