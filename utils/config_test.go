package utils

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func validTestConfig(t *testing.T) *Config {
	return &Config{
		API: APIConfig{
			BaseURL:              "http://localhost:9000/evaluation-service",
			RefreshInterval:      30,
			FetchTimeout:         20,
			MaxConcurrentFetches: 4,
			MaxRequestsPerMinute: 600,
		},
		Auth: AuthConfig{
			URL: "http://localhost:3001/api",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "test.db"),
		},
		Server: ServerConfig{
			Port:                 8080,
			MaxRequestsPerMinute: 120,
		},
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "test-value")

	value := getEnv("TEST_ENV_VAR", "default-value")
	assert.Equal(t, "test-value", value)

	value = getEnv("NON_EXISTENT_VAR", "default-value")
	assert.Equal(t, "default-value", value)
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")
	value := getEnvAsInt("TEST_INT_VAR", 10)
	assert.Equal(t, 42, value)

	t.Setenv("TEST_INVALID_INT_VAR", "not-an-int")
	value = getEnvAsInt("TEST_INVALID_INT_VAR", 10)
	assert.Equal(t, 10, value)

	value = getEnvAsInt("NON_EXISTENT_VAR", 10)
	assert.Equal(t, 10, value)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, validateConfig(validTestConfig(t)))

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{
			name:    "Missing base URL",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			message: "EVAL_API_BASE_URL",
		},
		{
			name:    "Relative base URL",
			mutate:  func(c *Config) { c.API.BaseURL = "evaluation-service" },
			message: "EVAL_API_BASE_URL",
		},
		{
			name:    "Bad auth URL",
			mutate:  func(c *Config) { c.Auth.URL = "::nope" },
			message: "AUTH_API_URL",
		},
		{
			name:    "Zero refresh interval",
			mutate:  func(c *Config) { c.API.RefreshInterval = 0 },
			message: "REFRESH_INTERVAL",
		},
		{
			name:    "Negative fetch timeout",
			mutate:  func(c *Config) { c.API.FetchTimeout = -1 },
			message: "FETCH_TIMEOUT",
		},
		{
			name:    "No concurrency",
			mutate:  func(c *Config) { c.API.MaxConcurrentFetches = 0 },
			message: "MAX_CONCURRENT_FETCHES",
		},
		{
			name:    "No request allowance",
			mutate:  func(c *Config) { c.API.MaxRequestsPerMinute = 0 },
			message: "MAX_REQUESTS_PER_MINUTE",
		},
		{
			name:    "Port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			message: "SERVER_PORT",
		},
		{
			name:    "No client allowance",
			mutate:  func(c *Config) { c.Server.MaxRequestsPerMinute = 0 },
			message: "SERVER_MAX_REQUESTS_PER_MINUTE",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := validTestConfig(t)
			tc.mutate(config)

			err := validateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestValidateConfigCreatesDatabaseDir(t *testing.T) {
	config := validTestConfig(t)
	dir := filepath.Join(t.TempDir(), "nested", "data")
	config.Database.Path = filepath.Join(dir, "analytics.db")

	require.NoError(t, validateConfig(config))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	content := "EVAL_API_BASE_URL=http://example.test/eval\n" +
		"EVAL_ACCESS_TOKEN=abc\n" +
		"REFRESH_INTERVAL=45\n" +
		"DATABASE_PATH=" + filepath.Join(dir, "a.db") + "\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0644))

	// godotenv does not override existing variables; t.Setenv restores them afterwards
	for _, key := range []string{"EVAL_API_BASE_URL", "EVAL_ACCESS_TOKEN", "REFRESH_INTERVAL", "DATABASE_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	config, err := LoadConfig(envPath, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "http://example.test/eval", config.API.BaseURL)
	assert.Equal(t, "abc", config.API.AccessToken)
	assert.Equal(t, 45*time.Second, config.API.RefreshIntervalDuration())
	assert.Equal(t, 20*time.Second, config.API.FetchTimeoutDuration())
	assert.Equal(t, 4, config.API.MaxConcurrentFetches)
	assert.Equal(t, 8080, config.Server.Port)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("REFRESH_INTERVAL", "")
	t.Setenv("MAX_REQUESTS_PER_MINUTE", "")
	t.Setenv("SERVER_MAX_REQUESTS_PER_MINUTE", "")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "a.db"))

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 30, config.API.RefreshInterval)
	assert.Equal(t, 1200, config.API.MaxRequestsPerMinute)
	assert.Equal(t, 120, config.Server.MaxRequestsPerMinute)
}
