// Package config provides configuration management for oasconform services.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	DB        DBConfig
	API       APIConfig
	Admin     AdminConfig
	Worker    WorkerConfig
	Validator ValidatorConfig
	Ingest    IngestConfig
	Report    ReportConfig
	Rules     RulesConfig
	Log       LogConfig
}

// DBConfig selects the backing database.
type DBConfig struct {
	URL string
}

// APIConfig holds the gRPC ingestion API listener.
type APIConfig struct {
	Host string
	Port int
}

// Address returns host:port.
func (c APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminConfig holds the HTTP listener for /metrics and /healthz.
type AdminConfig struct {
	Addr string
}

// WorkerConfig controls the queue pollers.
type WorkerConfig struct {
	CheckQueueInterval time.Duration
	PayloadQueue       string
	ReportQueue        string
}

// ValidatorConfig controls payload validation output.
type ValidatorConfig struct {
	Locale    string
	AllErrors bool
}

// IngestConfig controls AddPayload.
type IngestConfig struct {
	KeepPayloadContent bool
	SyncWaitRetries    int
	SyncWaitInterval   time.Duration
}

// ReportConfig controls report consolidation.
type ReportConfig struct {
	ExampleReplaceRate float64
}

// RulesConfig points at an optional business-rule file.
type RulesConfig struct {
	File string
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		DB:    DBConfig{URL: "sqlite://./data/oasconform.db"},
		API:   APIConfig{Host: "0.0.0.0", Port: 50051},
		Admin: AdminConfig{Addr: ":9090"},
		Worker: WorkerConfig{
			CheckQueueInterval: time.Second,
			PayloadQueue:       "payload",
			ReportQueue:        "report",
		},
		Validator: ValidatorConfig{Locale: "en"},
		Ingest: IngestConfig{
			SyncWaitRetries:  30,
			SyncWaitInterval: time.Second,
		},
		Report: ReportConfig{ExampleReplaceRate: 0.1},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// APIKeys extracts API keys from environment variables.
// Supports OASC_API_KEY (single) and OASC_API_KEY_N (rotation).
func APIKeys() ([]string, error) {
	var keys []string
	seen := map[string]string{}

	add := func(name, val string) error {
		key, err := ParseAPIKey(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("duplicate API key in %s and %s", prev, name)
		}
		seen[key] = name
		keys = append(keys, key)
		return nil
	}

	if val := os.Getenv("OASC_API_KEY"); val != "" {
		if err := add("OASC_API_KEY", val); err != nil {
			return nil, err
		}
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("OASC_API_KEY_%d", i)
		val := os.Getenv(name)
		if val == "" {
			break
		}
		if err := add(name, val); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

// ParseAPIKey trims and checks an API key from the environment.
func ParseAPIKey(envValue string) (string, error) {
	key := strings.TrimSpace(envValue)
	if len(key) < 16 {
		return "", fmt.Errorf("API key must be at least 16 characters, got %d", len(key))
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return "", fmt.Errorf("API key must not contain whitespace")
	}
	return key, nil
}
