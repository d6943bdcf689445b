package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1000, cfg.Pipeline.ReconnectDelayMs)
	assert.Equal(t, 30000, cfg.Pipeline.MaxReconnectDelayMs)
	assert.Equal(t, 0, cfg.Pipeline.MaxReconnectAttempts, "default unbounded")
	assert.Equal(t, 5000, cfg.Pipeline.StaleThresholdMs)
	assert.False(t, cfg.Pipeline.Backpressure)
	assert.Equal(t, 0, cfg.Pipeline.HeartbeatIntervalMs, "heartbeat off by default")
	assert.Equal(t, 5000, cfg.Response.TimeoutMs)
	assert.Equal(t, 16, cfg.Scheduler.TickIntervalMs)
	assert.Equal(t, 64*1024, cfg.Worker.MaxPayloadBytes)
}

func TestParseOverridesAndDurations(t *testing.T) {
	cfg, err := Parse([]byte(`
pipeline:
  url: wss://stream.example.com/ws
  reconnect_delay_ms: 250
  max_reconnect_delay_ms: 4000
  max_reconnect_attempts: 5
  backpressure: true
  heartbeat_interval_ms: 15000
response:
  timeout_ms: 2000
`))
	require.NoError(t, err)

	assert.Equal(t, "wss://stream.example.com/ws", cfg.Pipeline.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.ReconnectDelay())
	assert.Equal(t, 4*time.Second, cfg.Pipeline.MaxReconnectDelay())
	assert.Equal(t, 5, cfg.Pipeline.MaxReconnectAttempts)
	assert.True(t, cfg.Pipeline.Backpressure)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.HeartbeatInterval())
	assert.Equal(t, 2*time.Second, cfg.Response.Timeout())

	// Untouched sections still get defaults
	assert.Equal(t, 16, cfg.Worker.TickIntervalMs)
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad scheme", "pipeline:\n  url: http://example.com\n"},
		{"inverted delays", "pipeline:\n  reconnect_delay_ms: 5000\n  max_reconnect_delay_ms: 100\n"},
		{"negative attempts", "pipeline:\n  max_reconnect_attempts: -1\n"},
		{"invalid yaml", "pipeline: [\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  url: ws://localhost:8080/ws\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Pipeline.URL)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
