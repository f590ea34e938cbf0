package config

import (
	"time"

	"github.com/vietddude/erpsync/internal/core/retry"
	"github.com/vietddude/erpsync/internal/core/worker"
	"github.com/vietddude/erpsync/internal/indexing/drain"
	redisclient "github.com/vietddude/erpsync/internal/infra/redis"
	"github.com/vietddude/erpsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logging  LoggingConfig       `yaml:"logging"`
	Database postgres.Config     `yaml:"database"`
	Redis    redisclient.Config  `yaml:"redis"`
	Retry    RetryConfig         `yaml:"retry"`
	Drain    drain.Config        `yaml:"drain"`
	Pruner   worker.PrunerConfig `yaml:"pruner"`
}

// ServerConfig holds health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RetryConfig holds the retry policy for storage and index calls.
type RetryConfig struct {
	MaxRetries *int          `yaml:"max_retries"` // nil = default (3), 0 = no retries
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// Policy converts the configuration into a retry policy.
func (c RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy
	if c.MaxRetries != nil {
		p.MaxRetries = *c.MaxRetries
	}
	if c.BaseDelay > 0 {
		p.BaseDelay = c.BaseDelay
	}
	return p
}
