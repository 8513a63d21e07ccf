// Package config handles loading and validation of driftlock.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// FileName is the project configuration file Driftlock looks for.
const FileName = "driftlock.yaml"

// Load reads and parses driftlock.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Queue == nil {
		cfg.Queue = &types.QueueConfig{Type: types.QueueMemory}
	}
	if cfg.Queue.Type == "" {
		cfg.Queue.Type = types.QueueMemory
	}
	if len(cfg.Alerts) == 0 {
		cfg.Alerts = []types.AlertConfig{{Type: types.AlertConsole}}
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "":
		return fmt.Errorf("provider is required")
	case "redis":
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when provider is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
		if cfg.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb.region is required")
		}
	default:
		return fmt.Errorf("unknown provider %q (want redis or dynamodb)", cfg.Provider)
	}

	switch cfg.Queue.Type {
	case types.QueueMemory:
	case types.QueueSQS:
		if cfg.Queue.QueueURL == "" {
			return fmt.Errorf("queue.queueUrl is required when queue type is sqs")
		}
	default:
		return fmt.Errorf("unknown queue type %q (want memory or sqs)", cfg.Queue.Type)
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return fmt.Errorf("alerts[%d]: webhook URL is required", i)
			}
		case types.AlertFile:
			if a.Path == "" {
				return fmt.Errorf("alerts[%d]: file path is required", i)
			}
		case types.AlertSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alerts[%d]: SNS topic ARN is required", i)
			}
		default:
			return fmt.Errorf("alerts[%d]: unknown alert type %q", i, a.Type)
		}
	}

	if cfg.Archiver != nil && cfg.Archiver.Enabled && cfg.Archiver.DSN == "" {
		return fmt.Errorf("archiver.dsn is required when the archiver is enabled")
	}

	for name, interval := range map[string]string{
		"monitor.interval":  intervalOf(cfg.Monitor),
		"archiver.interval": archiverIntervalOf(cfg.Archiver),
	} {
		if interval == "" {
			continue
		}
		if d, err := time.ParseDuration(interval); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, interval)
		}
	}

	return nil
}

func intervalOf(m *types.MonitorConfig) string {
	if m == nil {
		return ""
	}
	return m.Interval
}

func archiverIntervalOf(a *types.ArchiverConfig) string {
	if a == nil {
		return ""
	}
	return a.Interval
}
