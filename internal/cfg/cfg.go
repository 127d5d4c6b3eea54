// Package cfg loads dashboard configuration from a YAML file (CONFIG_FILE)
// with environment-variable fallback and override.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	BackendURL        string
	StreamURL         string
	ReconnectInterval time.Duration
	MaxReconnects     int
	RefreshInterval   time.Duration
	MaxSignals        int
	RESTTimeout       time.Duration
	MetricsPort       int
	DashboardPort     int
	DataPath          string
	LogLevel          string
}

type ConfigFile struct {
	API struct {
		BaseURL  string `yaml:"baseURL"`
		StreamURL string `yaml:"streamURL"`
	} `yaml:"api"`

	Stream struct {
		ReconnectInterval string `yaml:"reconnectInterval"`
		MaxReconnects     int    `yaml:"maxReconnects"`
		RefreshInterval   string `yaml:"refreshInterval"`
		MaxSignals        int    `yaml:"maxSignals"`
	} `yaml:"stream"`

	System struct {
		DataPath      string `yaml:"dataPath"`
		MetricsPort   int    `yaml:"metricsPort"`
		DashboardPort int    `yaml:"dashboardPort"`
		RESTTimeout   string `yaml:"restTimeout"`
		LogLevel      string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		BackendURL:        getEnvOrDefault("BACKEND_URL", config.API.BaseURL),
		StreamURL:         getEnvOrDefault("STREAM_URL", config.API.StreamURL),
		ReconnectInterval: parseDurationOrDefault(config.Stream.ReconnectInterval, 3*time.Second),
		MaxReconnects:     intOrDefault(config.Stream.MaxReconnects, 10),
		RefreshInterval:   parseDurationOrDefault(config.Stream.RefreshInterval, 30*time.Second),
		MaxSignals:        intOrDefault(config.Stream.MaxSignals, 500),
		RESTTimeout:       parseDurationOrDefault(config.System.RESTTimeout, 5*time.Second),
		MetricsPort:       intOrDefault(config.System.MetricsPort, 9091),
		DashboardPort:     intOrDefault(config.System.DashboardPort, 8080),
		DataPath:          getEnvOrDefault("DATA_PATH", config.System.DataPath),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", orDefault(config.System.LogLevel, "info")),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		BackendURL:        getEnvOrDefault("BACKEND_URL", "http://localhost:8000"),
		StreamURL:         getEnvOrDefault("STREAM_URL", "ws://localhost:8000/ws/signals"),
		ReconnectInterval: getDurationOrDefault("RECONNECT_INTERVAL", 3*time.Second),
		MaxReconnects:     getIntOrDefault("MAX_RECONNECTS", 10),
		RefreshInterval:   getDurationOrDefault("REFRESH_INTERVAL", 30*time.Second),
		MaxSignals:        getIntOrDefault("MAX_SIGNALS", 500),
		RESTTimeout:       getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
		MetricsPort:       getIntOrDefault("METRICS_PORT", 9091),
		DashboardPort:     getIntOrDefault("DASHBOARD_PORT", 8080),
		DataPath:          os.Getenv("DATA_PATH"), // optional
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseDurationOrDefault(v string, defaultValue time.Duration) time.Duration {
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func intOrDefault(v, defaultValue int) int {
	if v != 0 {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.BackendURL == "" {
		return fmt.Errorf("backend URL cannot be empty")
	}
	if settings.StreamURL == "" {
		return fmt.Errorf("stream URL cannot be empty")
	}

	if settings.ReconnectInterval < 100*time.Millisecond || settings.ReconnectInterval > 5*time.Minute {
		return fmt.Errorf("reconnect interval must be between 100ms and 5m, got %v", settings.ReconnectInterval)
	}
	if settings.RefreshInterval < time.Second || settings.RefreshInterval > time.Hour {
		return fmt.Errorf("refresh interval must be between 1s and 1h, got %v", settings.RefreshInterval)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	if settings.MaxReconnects <= 0 || settings.MaxReconnects > 1000 {
		return fmt.Errorf("max reconnects must be between 1 and 1000, got %d", settings.MaxReconnects)
	}
	if settings.MaxSignals <= 0 || settings.MaxSignals > 100000 {
		return fmt.Errorf("max signals must be between 1 and 100000, got %d", settings.MaxSignals)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.DashboardPort < 1024 || settings.DashboardPort > 65535 {
		return fmt.Errorf("dashboard port must be between 1024 and 65535, got %d", settings.DashboardPort)
	}

	return nil
}
