package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_ParsesAndFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
simulation:
  end_time: 7200
  sample_size: 0.25
scenario:
  path: scenario.bin
partitioning:
  num_parts: 4
  method: file
  path: parts.yaml
services:
  routing:
    mode: remote
    endpoints: ["ws://router-1:9000", "ws://router-2:9000"]
    fallback: wait
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	assert.Equal(t, 7200, cfg.Simulation.EndTime)
	assert.Equal(t, 0.25, cfg.Simulation.SampleSize)
	assert.Equal(t, 4, cfg.Partitioning.NumParts)
	assert.Equal(t, "file", cfg.Partitioning.Method)
	assert.Equal(t, "remote", cfg.Services.Routing.Mode)
	assert.Equal(t, 2, len(cfg.Services.Routing.Endpoints))
	assert.Equal(t, "wait", cfg.Services.Routing.Fallback)

	// defaults for everything the file left out
	assert.Equal(t, 0, cfg.Simulation.StartTime)
	assert.Equal(t, 30, cfg.Simulation.StuckThreshold)
	assert.Equal(t, 900, cfg.Simulation.SyncPeriod)
	assert.Equal(t, 2, cfg.Services.Routing.Workers)
	assert.Equal(t, 1024, cfg.Services.Routing.QueueSize)

	assert.NoError(t, cfg.Validate())
}

func TestConfig_DefaultsAreValid(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Scenario.Path = "scenario.bin"

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"end before start", func(c *Config) { c.Simulation.StartTime = 100; c.Simulation.EndTime = 50 }},
		{"sample size above one", func(c *Config) { c.Simulation.SampleSize = 1.5 }},
		{"unknown partitioning method", func(c *Config) { c.Partitioning.Method = "metis" }},
		{"file method without path", func(c *Config) { c.Partitioning.Method = "file" }},
		{"missing scenario path", func(c *Config) { c.Scenario.Path = "" }},
		{"unknown routing mode", func(c *Config) { c.Services.Routing.Mode = "grpc" }},
		{"remote without endpoints", func(c *Config) { c.Services.Routing.Mode = "remote" }},
		{"unknown fallback", func(c *Config) { c.Services.Routing.Fallback = "retry" }},
		{"zero workers", func(c *Config) { c.Services.Routing.Workers = -1 }},
	}
	for _, tc := range cases {
		cfg := &Config{}
		cfg.ApplyDefaults()
		cfg.Scenario.Path = "scenario.bin"
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "simulation: [not a mapping")

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected a parse error")
	}
}
