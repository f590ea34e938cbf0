package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/erpsync/internal/indexing/drain"
	"github.com/vietddude/erpsync/internal/infra/storage/postgres"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.URL != "" && cfg.Database.Driver == "" {
		cfg.Database.Driver = postgres.DriverPgx
	}

	def := drain.DefaultConfig()
	if cfg.Drain.Interval == 0 {
		cfg.Drain.Interval = def.Interval
	}
	if cfg.Drain.BatchSize == 0 {
		cfg.Drain.BatchSize = def.BatchSize
	}
	if cfg.Drain.MaxAttempts == 0 {
		cfg.Drain.MaxAttempts = def.MaxAttempts
	}
	if cfg.Drain.StaleAfter == 0 {
		cfg.Drain.StaleAfter = def.StaleAfter
	}
}
