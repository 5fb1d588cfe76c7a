// Package config loads process configuration from the environment,
// grounded on the original ping-agent's env_get/env_get_num helpers: a
// required variable missing is a fatal, typed error rather than a panic —
// only main() decides to exit(1) on it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is everything an agent or offloader process needs to start.
type Config struct {
	PulsarAddress   string `yaml:"pulsar_address"`
	PulsarToken     string `yaml:"pulsar_token"`
	PulsarTenant    string `yaml:"pulsar_tenant"`
	PulsarNamespace string `yaml:"pulsar_namespace"`
	PulsarTopic     string `yaml:"pulsar_topic"`
	AgentID         string `yaml:"agent_id"`

	// Jobs sets GOMAXPROCS, the Go-runtime analog of the original
	// ping-agent's JOBS/worker_threads tokio runtime setting.
	Jobs int `yaml:"jobs"`

	// TaskPoolsSize sizes the bounded per-wheel dispatch worker pool
	// (scheduler.Wheel), matching the original's TASK_POOLS_SIZE /
	// LocalPoolHandle setting.
	TaskPoolsSize int `yaml:"task_pools_size"`
	SubscriptionID  string `yaml:"subscription_id"`
	LogLevel        string `yaml:"log_level"`
}

const (
	defaultJobs          = 4
	defaultTaskPoolsSize = 1000
	defaultLogLevel      = "info"
)

// Load reads Config from environment variables, optionally overlaid first
// by a YAML file at overlayPath (pass "" to skip it). Env vars always win
// over the overlay, matching spec.md's env-vars-take-precedence rule.
func Load(overlayPath string) (Config, error) {
	var cfg Config
	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading overlay %s: %w", overlayPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing overlay %s: %w", overlayPath, err)
		}
	}

	var err error
	if cfg.PulsarAddress, err = required("PULSAR_ADDRESS", cfg.PulsarAddress); err != nil {
		return Config{}, err
	}
	cfg.PulsarToken = optional("PULSAR_TOKEN", cfg.PulsarToken)
	if cfg.PulsarTenant, err = required("PULSAR_TENANT", cfg.PulsarTenant); err != nil {
		return Config{}, err
	}
	if cfg.PulsarNamespace, err = required("PULSAR_NAMESPACE", cfg.PulsarNamespace); err != nil {
		return Config{}, err
	}
	if cfg.PulsarTopic, err = required("PULSAR_TOPIC", cfg.PulsarTopic); err != nil {
		return Config{}, err
	}
	if cfg.AgentID, err = required("AGENT_ID", cfg.AgentID); err != nil {
		return Config{}, err
	}
	if cfg.SubscriptionID, err = required("SUBSCRIPTION_ID", cfg.SubscriptionID); err != nil {
		return Config{}, err
	}

	cfg.Jobs = optionalInt("JOBS", cfg.Jobs, defaultJobs)
	cfg.TaskPoolsSize = optionalInt("TASK_POOLS_SIZE", cfg.TaskPoolsSize, defaultTaskPoolsSize)
	cfg.LogLevel = optional("LOG_LEVEL", orDefault(cfg.LogLevel, defaultLogLevel))

	return cfg, nil
}

func required(name, fallback string) (string, error) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("config: required environment variable %s is not set", name)
}

func optional(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

func optionalInt(name string, fallback, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		if fallback != 0 {
			return fallback
		}
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if fallback != 0 {
			return fallback
		}
		return def
	}
	return n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
