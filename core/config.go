/*
Package core provides configuration management and logging initialization
for the AlphaBot agent service.

This file handles:
- Loading configuration from environment variables with sensible defaults
- Structured logging setup with configurable levels and formats
- Completion endpoint, tool execution and persistence parameters
- Web search engine configuration and feature gating

The configuration system follows the twelve-factor app methodology by
prioritizing environment variables for deployment flexibility while
providing reasonable defaults for development.
*/
package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all configurable values for the AlphaBot agent service.
// This structure centralizes all operational parameters including server
// settings, completion endpoint configuration, reasoning loop limits,
// tool execution behavior, persistence and web search settings.
type Config struct {
	// Server configuration
	Port string // HTTP server port number (default: "8080")

	// Completion endpoint configuration (OpenAI-compatible)
	OpenAIBaseURL     string  // Base URL of the completion API (default: "https://api.openai.com/v1")
	OpenAIAPIKey      string  // API key for the completion endpoint (required)
	OpenAIModel       string  // Default model name for completions (default: "gpt-4o-mini")
	OpenAIMaxTokens   int     // Maximum tokens per completion (default: 1000)
	OpenAITemperature float64 // Sampling temperature for completions (default: 0.7)
	AvailableModels   string  // Comma-separated list of models clients may select (default: OpenAIModel)

	// Reasoning loop configuration
	MaxToolIterations int           // Maximum probe/execute rounds before the loop aborts (default: 10)
	ProbeTimeout      time.Duration // Timeout for a single completion probe (default: 60s)
	ToolTimeout       time.Duration // Timeout for a single tool execution (default: 30s)
	RequestTimeout    time.Duration // Overall timeout for one chat request (default: 300s)
	HistoryLimit      int           // Number of persisted turns reconstructed into context (default: 10)

	// Persistence configuration
	DatabasePath string // SQLite database path for conversation turns (default: "alphabot.db")

	// Web search configuration
	SearchEnabled   bool   // Whether the search_web tool is registered (default: false)
	SearchEngine    string // Preferred engine: "serpapi", "googleapi" or "bingapi" (default: "serpapi")
	SerpAPIKey      string // API key for SerpAPI
	GoogleSearchKey string // API key for the Google Custom Search API
	GoogleSearchCX  string // Google Custom Search engine id
	BingSearchKey   string // API key for the Bing Web Search API

	// Market data configuration
	AlphaVantageKey string // API key for the Alpha Vantage market data API

	// Logging and streaming configuration
	LogLevel          string // Minimum log level: debug, info, warn, error (default: "info")
	LogTruncateLength int    // Maximum length for log message truncation (default: 500)
	StreamBufferSize  int    // Bounded event channel capacity per request (default: 16)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. Defaults are set first and then overridden by environment
// variables when present; numeric values are validated before use.
//
// Environment Variables:
//   - PORT: Server port (string)
//   - OPENAI_API_BASE: Completion API base URL (string)
//   - OPENAI_API_KEY: Completion API key (string)
//   - OPENAI_MODEL: Default completion model (string)
//   - OPENAI_AVAILABLE_MODELS: Comma-separated selectable models (string)
//   - OPENAI_MAX_TOKENS: Maximum completion tokens (integer)
//   - OPENAI_TEMPERATURE: Sampling temperature (float)
//   - MAX_TOOL_ITERATIONS: Maximum reasoning loop rounds (integer)
//   - PROBE_TIMEOUT: Completion probe timeout in seconds (integer)
//   - TOOL_TIMEOUT: Tool execution timeout in seconds (integer)
//   - REQUEST_TIMEOUT: Request timeout in seconds (integer)
//   - HISTORY_LIMIT: Persisted turns used as context (integer)
//   - DATABASE_PATH: SQLite database path (string)
//   - SEARCH_API_ENABLED: Enable the web search tool (boolean: "true"/"1")
//   - SEARCH_ENGINE: Preferred search engine (string)
//   - SERPAPI_API_KEY, GOOGLE_SEARCH_API_KEY, GOOGLE_SEARCH_CX,
//     BING_SEARCH_API_KEY: Search engine credentials (string)
//   - ALPHAVANTAGE_API_KEY: Market data API key (string)
//   - LOG_LEVEL: Logging level (string)
//   - LOG_TRUNCATE_LENGTH: Log truncation length (integer)
//   - STREAM_BUFFER_SIZE: Event channel capacity (integer)
func LoadConfig() *Config {
	config := &Config{
		// Server defaults
		Port: "8080",

		// Completion endpoint defaults
		OpenAIBaseURL:     "https://api.openai.com/v1",
		OpenAIAPIKey:      "", // Must be provided via environment variable
		OpenAIModel:       "gpt-4o-mini",
		OpenAIMaxTokens:   1000,
		OpenAITemperature: 0.7,

		// Reasoning loop defaults
		MaxToolIterations: 10,
		ProbeTimeout:      60 * time.Second,
		ToolTimeout:       30 * time.Second,
		RequestTimeout:    300 * time.Second, // 5 minutes
		HistoryLimit:      10,

		// Persistence defaults
		DatabasePath: "alphabot.db",

		// Web search defaults
		SearchEnabled: false,
		SearchEngine:  "serpapi",

		// Logging and streaming defaults
		LogLevel:          "info",
		LogTruncateLength: 500,
		StreamBufferSize:  16,
	}

	// Server configuration
	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}

	// Completion endpoint configuration
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		config.OpenAIBaseURL = base
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OpenAIAPIKey = key
	}

	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.OpenAIModel = model
	}

	if models := os.Getenv("OPENAI_AVAILABLE_MODELS"); models != "" {
		config.AvailableModels = models
	}

	if maxTokens := os.Getenv("OPENAI_MAX_TOKENS"); maxTokens != "" {
		if val, err := strconv.Atoi(maxTokens); err == nil && val > 0 {
			config.OpenAIMaxTokens = val
		}
	}

	if temp := os.Getenv("OPENAI_TEMPERATURE"); temp != "" {
		if val, err := strconv.ParseFloat(temp, 64); err == nil && val >= 0 {
			config.OpenAITemperature = val
		}
	}

	// Reasoning loop parameters with validation
	if maxIter := os.Getenv("MAX_TOOL_ITERATIONS"); maxIter != "" {
		if val, err := strconv.Atoi(maxIter); err == nil && val > 0 {
			config.MaxToolIterations = val
		}
	}

	if timeout := os.Getenv("PROBE_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			config.ProbeTimeout = time.Duration(val) * time.Second
		}
	}

	if timeout := os.Getenv("TOOL_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			config.ToolTimeout = time.Duration(val) * time.Second
		}
	}

	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			config.RequestTimeout = time.Duration(val) * time.Second
		}
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil && val > 0 {
			config.HistoryLimit = val
		}
	}

	// Persistence configuration
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		config.DatabasePath = path
	}

	// Web search configuration (accepts "true", "1", or case variations)
	if enabled := os.Getenv("SEARCH_API_ENABLED"); enabled != "" {
		config.SearchEnabled = strings.ToLower(enabled) == "true" || enabled == "1"
	}

	if engine := os.Getenv("SEARCH_ENGINE"); engine != "" {
		if engine == "serpapi" || engine == "googleapi" || engine == "bingapi" {
			config.SearchEngine = engine
		}
	}

	if key := os.Getenv("SERPAPI_API_KEY"); key != "" {
		config.SerpAPIKey = key
	}

	if key := os.Getenv("GOOGLE_SEARCH_API_KEY"); key != "" {
		config.GoogleSearchKey = key
	}

	if cx := os.Getenv("GOOGLE_SEARCH_CX"); cx != "" {
		config.GoogleSearchCX = cx
	}

	if key := os.Getenv("BING_SEARCH_API_KEY"); key != "" {
		config.BingSearchKey = key
	}

	// Market data configuration
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		config.AlphaVantageKey = key
	}

	// Logging and streaming configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}

	if truncateLen := os.Getenv("LOG_TRUNCATE_LENGTH"); truncateLen != "" {
		if val, err := strconv.Atoi(truncateLen); err == nil && val > 0 {
			config.LogTruncateLength = val
		}
	}

	if bufSize := os.Getenv("STREAM_BUFFER_SIZE"); bufSize != "" {
		if val, err := strconv.Atoi(bufSize); err == nil && val > 0 {
			config.StreamBufferSize = val
		}
	}

	return config
}

// SelectableModels returns the list of model names clients may request,
// falling back to the configured default model when no explicit list is set.
func (c *Config) SelectableModels() []string {
	raw := c.AvailableModels
	if raw == "" {
		return []string{c.OpenAIModel}
	}

	var models []string
	for _, m := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	if len(models) == 0 {
		return []string{c.OpenAIModel}
	}
	return models
}

// InitializeLogger configures and returns a structured logger based on the
// provided configuration. The logger uses JSON formatting for structured
// logging, which is ideal for production environments, log aggregation,
// and automated log processing.
//
// Features:
// - JSON formatted output for structured logging
// - Configurable log levels (debug, info, warn, error)
// - RFC3339 timestamp format for precise timing
// - Output to stdout for container-friendly logging
//
// Parameters:
//   - config: Configuration object containing logging preferences
//
// Returns:
//   - *logrus.Logger: Configured logger instance ready for use
func InitializeLogger(config *Config) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339, // Use RFC3339 for ISO 8601 compatibility
	})

	// Set log level based on configuration with case-insensitive matching
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// Set output to stdout for container/cloud environments
	logger.SetOutput(os.Stdout)

	// Log the loaded configuration for operational visibility
	logger.WithFields(logrus.Fields{
		"openaiBaseURL":     config.OpenAIBaseURL,
		"openaiModel":       config.OpenAIModel,
		"maxToolIterations": config.MaxToolIterations,
		"probeTimeout":      config.ProbeTimeout,
		"toolTimeout":       config.ToolTimeout,
		"requestTimeout":    config.RequestTimeout,
		"historyLimit":      config.HistoryLimit,
		"databasePath":      config.DatabasePath,
		"searchEnabled":     config.SearchEnabled,
		"searchEngine":      config.SearchEngine,
		"logTruncateLength": config.LogTruncateLength,
		"streamBufferSize":  config.StreamBufferSize,
	}).Info("Configuration loaded")

	return logger
}
