package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/textbook-rag/internal/rag"
	"github.com/upb/textbook-rag/services"
)

// Fixed settings of the textbook index. They are not read from the environment.
const (
	CollectionName = rag.CollectionName
	EmbeddingModel = "models/text-embedding-004"
	ClientTimeout  = 30 * time.Second
)

// DefaultAllowedOrigin is the deployed textbook frontend.
const DefaultAllowedOrigin = "https://physical-ai-textbook-frontend-raz-c.vercel.app"

// ErrMissingEnv is returned when a required environment variable is not set.
var ErrMissingEnv = errors.New("missing required environment variable")

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Gemini        GeminiConfig
	Qdrant        QdrantConfig
	Agent         AgentConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// GeminiConfig holds the Gemini chat and embedding configuration
type GeminiConfig struct {
	APIKey           string
	BaseURL          string // OpenAI-compatible chat endpoint
	EmbeddingBaseURL string
	Model            string
	EmbeddingModel   string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

// QdrantConfig holds the vector database configuration
type QdrantConfig struct {
	URL            string
	APIKey         string
	CollectionName string
	Timeout        time.Duration
}

// AgentConfig holds the tool-calling loop settings
type AgentConfig struct {
	MaxTurns    int
	Temperature float64
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 110*time.Second),
		},
		Gemini: GeminiConfig{
			APIKey:           getEnv("GEMINI_API_KEY", ""),
			BaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			EmbeddingBaseURL: getEnv("GEMINI_EMBEDDING_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:            getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EmbeddingModel:   EmbeddingModel,
			Timeout:          getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			MaxRetries:       getEnvAsInt("GEMINI_MAX_RETRIES", 2),
			RetryDelay:       getEnvAsDuration("GEMINI_RETRY_DELAY", time.Second),
		},
		Qdrant: QdrantConfig{
			URL:            getEnv("QDRANT_URL", ""),
			APIKey:         getEnv("QDRANT_API_KEY", ""),
			CollectionName: CollectionName,
			Timeout:        ClientTimeout,
		},
		Agent: AgentConfig{
			MaxTurns:    getEnvAsInt("AGENT_MAX_TURNS", 10),
			Temperature: getEnvAsFloat("AGENT_TEMPERATURE", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{DefaultAllowedOrigin}),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	var missing []string
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Qdrant.URL == "" {
		missing = append(missing, "QDRANT_URL")
	}
	if c.Qdrant.APIKey == "" {
		missing = append(missing, "QDRANT_API_KEY")
	}
	if len(missing) > 0 {
		return services.ErrMissingConfiguration.Wrap(
			fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", ")),
		).WithDetail("missing", missing)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent max turns must be positive")
	}

	if c.Gemini.MaxRetries < 0 {
		return fmt.Errorf("gemini max retries must not be negative")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
