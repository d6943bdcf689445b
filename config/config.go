// Package config loads and validates streamcore configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamcore/errors"
)

// Config is the root configuration for a streamcore client
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Response  ResponseConfig  `yaml:"response"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PipelineConfig configures the connection pipeline
type PipelineConfig struct {
	URL                  string `yaml:"url"`
	ReconnectDelayMs     int    `yaml:"reconnect_delay_ms"`
	MaxReconnectDelayMs  int    `yaml:"max_reconnect_delay_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"` // 0 = unbounded
	StaleThresholdMs     int    `yaml:"stale_threshold_ms"`
	Backpressure         bool   `yaml:"backpressure"`
	FlushIntervalMs      int    `yaml:"flush_interval_ms"`
	HeartbeatIntervalMs  int    `yaml:"heartbeat_interval_ms"` // 0 = off
	HeartbeatMessage     string `yaml:"heartbeat_message"`     // empty = single zero byte
}

// ResponseConfig configures command/response correlation
type ResponseConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// WorkerConfig configures the background worker coordinator
type WorkerConfig struct {
	TickIntervalMs  int `yaml:"tick_interval_ms"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	CallTimeoutMs   int `yaml:"call_timeout_ms"`
}

// SchedulerConfig configures the multi-engine scheduler
type SchedulerConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// MetricsConfig configures the Prometheus scrape endpoint
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a configuration populated with all defaults
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML configuration file
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapFatal(err, "Config", "Load", "read config file")
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "Parse", "unmarshal yaml")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with their defaults
func (c *Config) applyDefaults() {
	if c.Pipeline.ReconnectDelayMs == 0 {
		c.Pipeline.ReconnectDelayMs = 1000
	}
	if c.Pipeline.MaxReconnectDelayMs == 0 {
		c.Pipeline.MaxReconnectDelayMs = 30000
	}
	if c.Pipeline.StaleThresholdMs == 0 {
		c.Pipeline.StaleThresholdMs = 5000
	}
	if c.Pipeline.FlushIntervalMs == 0 {
		c.Pipeline.FlushIntervalMs = 16
	}
	if c.Response.TimeoutMs == 0 {
		c.Response.TimeoutMs = 5000
	}
	if c.Worker.TickIntervalMs == 0 {
		c.Worker.TickIntervalMs = 16
	}
	if c.Worker.MaxPayloadBytes == 0 {
		c.Worker.MaxPayloadBytes = 64 * 1024
	}
	if c.Worker.CallTimeoutMs == 0 {
		c.Worker.CallTimeoutMs = 5000
	}
	if c.Scheduler.TickIntervalMs == 0 {
		c.Scheduler.TickIntervalMs = 16
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Pipeline.URL != "" &&
		!strings.HasPrefix(c.Pipeline.URL, "ws://") &&
		!strings.HasPrefix(c.Pipeline.URL, "wss://") {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline url must use ws:// or wss:// scheme, got %q", c.Pipeline.URL),
			"Config", "Validate", "check pipeline url")
	}
	if c.Pipeline.ReconnectDelayMs < 0 || c.Pipeline.MaxReconnectDelayMs < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("reconnect delays must be non-negative"),
			"Config", "Validate", "check reconnect delays")
	}
	if c.Pipeline.MaxReconnectDelayMs < c.Pipeline.ReconnectDelayMs {
		return errors.WrapInvalid(
			fmt.Errorf("max_reconnect_delay_ms (%d) below reconnect_delay_ms (%d)",
				c.Pipeline.MaxReconnectDelayMs, c.Pipeline.ReconnectDelayMs),
			"Config", "Validate", "check reconnect delays")
	}
	if c.Pipeline.MaxReconnectAttempts < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("max_reconnect_attempts must be non-negative"),
			"Config", "Validate", "check reconnect attempts")
	}
	if c.Worker.MaxPayloadBytes <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("worker max_payload_bytes must be positive"),
			"Config", "Validate", "check worker payload size")
	}
	return nil
}

// ReconnectDelay returns the base reconnect delay as a duration
func (c PipelineConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// MaxReconnectDelay returns the reconnect delay cap as a duration
func (c PipelineConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelayMs) * time.Millisecond
}

// StaleThreshold returns the staleness window as a duration
func (c PipelineConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMs) * time.Millisecond
}

// FlushInterval returns the backpressure flush cadence as a duration
func (c PipelineConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the keepalive cadence as a duration (0 = off)
func (c PipelineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// Timeout returns the response correlation timeout as a duration
func (c ResponseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// TickInterval returns the worker tick cadence as a duration
func (c WorkerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// CallTimeout returns the one-off call timeout as a duration
func (c WorkerConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// TickInterval returns the scheduler cadence as a duration
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}
