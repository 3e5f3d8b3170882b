package utils

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	API      APIConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// APIConfig holds evaluation API configuration
type APIConfig struct {
	BaseURL              string
	AccessToken          string // optional; seeds the credential store at startup
	RefreshInterval      int    // seconds
	FetchTimeout         int    // seconds
	MaxConcurrentFetches int
	MaxRequestsPerMinute int
}

// AuthConfig holds auth API configuration
type AuthConfig struct {
	URL string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port                 int
	MaxRequestsPerMinute int // per client IP
}

// RefreshIntervalDuration returns the refresh interval as a duration
func (c APIConfig) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

// FetchTimeoutDuration returns the per-cycle fetch timeout as a duration
func (c APIConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// LoadConfig loads configuration from a .env file, falling back to the
// process environment when the file doesn't exist
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using OS environment")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Social Media Analytics"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		API: APIConfig{
			BaseURL:              getEnv("EVAL_API_BASE_URL", "http://20.244.56.144/evaluation-service"),
			AccessToken:          getEnv("EVAL_ACCESS_TOKEN", ""),
			RefreshInterval:      getEnvAsInt("REFRESH_INTERVAL", 30),
			FetchTimeout:         getEnvAsInt("FETCH_TIMEOUT", 20),
			MaxConcurrentFetches: getEnvAsInt("MAX_CONCURRENT_FETCHES", 4),
			MaxRequestsPerMinute: getEnvAsInt("MAX_REQUESTS_PER_MINUTE", 1200),
		},
		Auth: AuthConfig{
			URL: getEnv("AUTH_API_URL", "http://localhost:3001/api"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./analytics.db"),
		},
		Server: ServerConfig{
			Port:                 getEnvAsInt("SERVER_PORT", 8080),
			MaxRequestsPerMinute: getEnvAsInt("SERVER_MAX_REQUESTS_PER_MINUTE", 120),
		},
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validateURL("EVAL_API_BASE_URL", config.API.BaseURL); err != nil {
		return err
	}
	if err := validateURL("AUTH_API_URL", config.Auth.URL); err != nil {
		return err
	}
	if config.API.RefreshInterval < 1 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if config.API.FetchTimeout < 1 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if config.API.MaxConcurrentFetches < 1 {
		return fmt.Errorf("MAX_CONCURRENT_FETCHES must be positive")
	}
	if config.API.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if config.Server.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("SERVER_MAX_REQUESTS_PER_MINUTE must be positive")
	}

	// if we are storing the db in a nested directory, create the directory
	dbDir := filepath.Dir(config.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}

func validateURL(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s environment variable is required", key)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	return nil
}
