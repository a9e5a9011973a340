package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"db-url":          "db.url",
	"host":            "api.host",
	"port":            "api.port",
	"admin-addr":      "admin.addr",
	"interval":        "worker.check_queue_interval",
	"locale":          "validator.locale",
	"all-errors":      "validator.all_errors",
	"rules-file":      "rules.file",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"keep-payloads":   "ingest.keep_payload_content",
	"replace-rate":    "report.example_replace_rate",
	"sync-wait-tries": "ingest.sync_wait_retries",
}

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags present in flagKeys are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("db.url", d.DB.URL)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("worker.check_queue_interval", d.Worker.CheckQueueInterval.String())
	v.SetDefault("worker.payload_queue", d.Worker.PayloadQueue)
	v.SetDefault("worker.report_queue", d.Worker.ReportQueue)
	v.SetDefault("validator.locale", d.Validator.Locale)
	v.SetDefault("validator.all_errors", d.Validator.AllErrors)
	v.SetDefault("ingest.keep_payload_content", d.Ingest.KeepPayloadContent)
	v.SetDefault("ingest.sync_wait_retries", d.Ingest.SyncWaitRetries)
	v.SetDefault("ingest.sync_wait_interval", d.Ingest.SyncWaitInterval.String())
	v.SetDefault("report.example_replace_rate", d.Report.ExampleReplaceRate)
	v.SetDefault("rules.file", d.Rules.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// OASC_DB_URL, OASC_WORKER_CHECK_QUEUE_INTERVAL, ...
	v.SetEnvPrefix("OASC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		DB:    DBConfig{URL: v.GetString("db.url")},
		API:   APIConfig{Host: v.GetString("api.host"), Port: v.GetInt("api.port")},
		Admin: AdminConfig{Addr: v.GetString("admin.addr")},
		Worker: WorkerConfig{
			CheckQueueInterval: v.GetDuration("worker.check_queue_interval"),
			PayloadQueue:       v.GetString("worker.payload_queue"),
			ReportQueue:        v.GetString("worker.report_queue"),
		},
		Validator: ValidatorConfig{
			Locale:    v.GetString("validator.locale"),
			AllErrors: v.GetBool("validator.all_errors"),
		},
		Ingest: IngestConfig{
			KeepPayloadContent: v.GetBool("ingest.keep_payload_content"),
			SyncWaitRetries:    v.GetInt("ingest.sync_wait_retries"),
			SyncWaitInterval:   v.GetDuration("ingest.sync_wait_interval"),
		},
		Report: ReportConfig{ExampleReplaceRate: v.GetFloat64("report.example_replace_rate")},
		Rules:  RulesConfig{File: v.GetString("rules.file")},
		Log:    LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive intervals and the sample rate.
func validateConfig(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("db.url must be set")
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.Worker.CheckQueueInterval <= 0 {
		return fmt.Errorf("worker.check_queue_interval must be positive, got %v", cfg.Worker.CheckQueueInterval)
	}
	if cfg.Worker.PayloadQueue == "" || cfg.Worker.ReportQueue == "" {
		return fmt.Errorf("worker queue names must not be empty")
	}
	if cfg.Worker.PayloadQueue == cfg.Worker.ReportQueue {
		return fmt.Errorf("payload and report queues must differ, both are %q", cfg.Worker.PayloadQueue)
	}
	if cfg.Ingest.SyncWaitRetries <= 0 {
		return fmt.Errorf("ingest.sync_wait_retries must be positive, got %d", cfg.Ingest.SyncWaitRetries)
	}
	if cfg.Ingest.SyncWaitInterval <= 0 {
		return fmt.Errorf("ingest.sync_wait_interval must be positive, got %v", cfg.Ingest.SyncWaitInterval)
	}
	if r := cfg.Report.ExampleReplaceRate; r < 0 || r > 1 {
		return fmt.Errorf("report.example_replace_rate must be within [0,1], got %v", r)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only API keys.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("api_key") || v.InConfig("api.api_key") || v.InConfig("api.key") {
		return fmt.Errorf("API keys not allowed in config files (use OASC_API_KEY environment variable)")
	}
	return nil
}
