package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported vector store backends.
const (
	BackendQdrant   = "qdrant"
	BackendWeaviate = "weaviate"
)

// Config holds all configuration for the application.
// It is built once by Load and passed by value into constructors.
type Config struct {
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	ChatModel           string
	EmbeddingModel      string
	EmbeddingVectorSize int

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string
	WeaviateHost     string
	WeaviateScheme   string
	WeaviateClass    string

	ChunkDBPath       string
	ContextTopK       int
	ContextMinScore   float32
	ContextMaxChars   int
	RetrievalTimeout  time.Duration
	CompletionTimeout time.Duration

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Collection returns the collection or class name searched by the configured backend.
func (c Config) Collection() string {
	if c.VectorBackend == BackendWeaviate {
		return c.WeaviateClass
	}
	return c.QdrantCollection
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load() // Try current directory

	// Walk up a few levels to find a project-level .env
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := Config{
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),

		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "isd-finance"),
		WeaviateHost:     getEnv("WEAVIATE_HOST", "localhost:8080"),
		WeaviateScheme:   getEnv("WEAVIATE_SCHEME", "http"),
		WeaviateClass:    getEnv("WEAVIATE_CLASS", "IsdFinanceChunk"),

		ChunkDBPath: getEnv("CHUNK_DB_PATH", ""),

		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.EmbeddingVectorSize, err = getInt("EMBEDDING_VECTOR_SIZE", 0); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingVectorSize < 0 {
		return Config{}, fmt.Errorf("EMBEDDING_VECTOR_SIZE must not be negative")
	}

	if cfg.ContextTopK, err = getInt("CONTEXT_TOP_K", 3); err != nil {
		return Config{}, err
	}
	if cfg.ContextTopK <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_TOP_K must be greater than 0")
	}

	minScore, err := strconv.ParseFloat(getEnv("CONTEXT_MIN_SCORE", "0.7"), 32)
	if err != nil {
		return Config{}, fmt.Errorf("CONTEXT_MIN_SCORE must be a valid number: %w", err)
	}
	cfg.ContextMinScore = float32(minScore)

	if cfg.ContextMaxChars, err = getInt("CONTEXT_MAX_CHARS", 3000); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxChars <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_MAX_CHARS must be greater than 0")
	}

	if cfg.RetrievalTimeout, err = getDuration("RETRIEVAL_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = getDuration("COMPLETION_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}

	switch cfg.VectorBackend {
	case BackendQdrant, BackendWeaviate:
	default:
		return Config{}, fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendWeaviate, cfg.VectorBackend)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	if cfg.ChunkDBPath != "" {
		dataDir := filepath.Dir(cfg.ChunkDBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return Config{}, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
