package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, name := range []string{
		"PORT", "OPENAI_MODEL", "MAX_TOOL_ITERATIONS", "PROBE_TIMEOUT",
		"TOOL_TIMEOUT", "REQUEST_TIMEOUT", "HISTORY_LIMIT", "DATABASE_PATH",
		"SEARCH_API_ENABLED", "SEARCH_ENGINE", "STREAM_BUFFER_SIZE",
	} {
		t.Setenv(name, "")
	}

	config := LoadConfig()

	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, "gpt-4o-mini", config.OpenAIModel)
	assert.Equal(t, 10, config.MaxToolIterations)
	assert.Equal(t, 60*time.Second, config.ProbeTimeout)
	assert.Equal(t, 30*time.Second, config.ToolTimeout)
	assert.Equal(t, 300*time.Second, config.RequestTimeout)
	assert.Equal(t, 10, config.HistoryLimit)
	assert.Equal(t, "alphabot.db", config.DatabasePath)
	assert.False(t, config.SearchEnabled)
	assert.Equal(t, "serpapi", config.SearchEngine)
	assert.Equal(t, 16, config.StreamBufferSize)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("MAX_TOOL_ITERATIONS", "3")
	t.Setenv("TOOL_TIMEOUT", "15")
	t.Setenv("SEARCH_API_ENABLED", "true")
	t.Setenv("SEARCH_ENGINE", "googleapi")
	t.Setenv("DATABASE_PATH", "/tmp/custom.db")

	config := LoadConfig()

	assert.Equal(t, "9090", config.Port)
	assert.Equal(t, "test-key", config.OpenAIAPIKey)
	assert.Equal(t, "gpt-4o", config.OpenAIModel)
	assert.Equal(t, 3, config.MaxToolIterations)
	assert.Equal(t, 15*time.Second, config.ToolTimeout)
	assert.True(t, config.SearchEnabled)
	assert.Equal(t, "googleapi", config.SearchEngine)
	assert.Equal(t, "/tmp/custom.db", config.DatabasePath)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_TOOL_ITERATIONS", "not-a-number")
	t.Setenv("TOOL_TIMEOUT", "-5")
	t.Setenv("SEARCH_ENGINE", "askjeeves")

	config := LoadConfig()

	assert.Equal(t, 10, config.MaxToolIterations)
	assert.Equal(t, 30*time.Second, config.ToolTimeout)
	assert.Equal(t, "serpapi", config.SearchEngine)
}

func TestSelectableModels(t *testing.T) {
	t.Run("defaults to configured model", func(t *testing.T) {
		config := &Config{OpenAIModel: "gpt-4o-mini"}
		assert.Equal(t, []string{"gpt-4o-mini"}, config.SelectableModels())
	})

	t.Run("splits and trims the configured list", func(t *testing.T) {
		config := &Config{
			OpenAIModel:     "gpt-4o-mini",
			AvailableModels: "gpt-4o-mini, gpt-4o , ,o3-mini",
		}
		assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o", "o3-mini"}, config.SelectableModels())
	})

	t.Run("blank list falls back to default", func(t *testing.T) {
		config := &Config{OpenAIModel: "gpt-4o-mini", AvailableModels: " , "}
		assert.Equal(t, []string{"gpt-4o-mini"}, config.SelectableModels())
	})
}

func TestInitializeLoggerLevels(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
	}
	for level, expected := range cases {
		logger := InitializeLogger(&Config{LogLevel: level})
		assert.Equal(t, expected, logger.GetLevel(), level)
	}
}
