package sim

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the run configuration, loadable from a YAML file. Zero values are
// filled in by ApplyDefaults before validation.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	Scenario     ScenarioConfig     `yaml:"scenario"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Services     ServicesConfig     `yaml:"services"`
	Output       OutputConfig       `yaml:"output"`
}

// OutputConfig controls what a run writes to disk.
type OutputConfig struct {
	Directory string `yaml:"directory"`

	// Events enables the per-partition event CSV files.
	Events bool `yaml:"events"`
}

// SimulationConfig holds the time bounds and queue-model parameters.
type SimulationConfig struct {
	StartTime int `yaml:"start_time"`
	EndTime   int `yaml:"end_time"`

	// SampleSize scales flow and storage capacities when the population is a
	// sample of the full demand. 1.0 means a full scenario.
	SampleSize float64 `yaml:"sample_size"`

	// StuckThreshold is the number of seconds a vehicle may wait at a buffer
	// head before it is force-released regardless of downstream storage.
	StuckThreshold int `yaml:"stuck_threshold"`

	// SyncPeriod is the tick interval of the travel-times broadcast. Boundary
	// sync always runs every tick.
	SyncPeriod int `yaml:"sync_period"`
}

// ScenarioConfig points at the converted binary scenario container.
type ScenarioConfig struct {
	Path string `yaml:"path"`
}

// PartitioningConfig selects how nodes map to partitions.
type PartitioningConfig struct {
	NumParts int `yaml:"num_parts"`

	// Method is "none" (everything on partition 0) or "file" (an externally
	// computed node-to-partition assignment).
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// ServicesConfig holds the external-service adapter setup.
type ServicesConfig struct {
	Routing RoutingConfig `yaml:"routing"`
}

// RoutingConfig configures the asynchronous routing service.
type RoutingConfig struct {
	// Mode is "off", "local" (in-process shortest path) or "remote"
	// (websocket endpoints).
	Mode      string   `yaml:"mode"`
	Endpoints []string `yaml:"endpoints"`
	Workers   int      `yaml:"workers"`
	QueueSize int      `yaml:"queue_size"`

	// Fallback decides what happens when a departure arrives before its
	// routing response: "wait" holds the agent back, "keep-route" departs on
	// the stale route, "abort" fails the run.
	Fallback string `yaml:"fallback"`
}

// ValidPartitioningMethods is the set of recognized partitioning method names.
var ValidPartitioningMethods = map[string]bool{"none": true, "file": true}

// ValidRoutingModes is the set of recognized routing service modes.
var ValidRoutingModes = map[string]bool{"off": true, "local": true, "remote": true}

// ValidFallbacks is the set of recognized routing fallback policies.
var ValidFallbacks = map[string]bool{"wait": true, "keep-route": true, "abort": true}

// LoadConfig reads and parses a YAML run configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading run config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing run config")
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Simulation.EndTime == 0 {
		c.Simulation.EndTime = 24 * 3600
	}
	if c.Simulation.SampleSize == 0 {
		c.Simulation.SampleSize = 1.0
	}
	if c.Simulation.StuckThreshold == 0 {
		c.Simulation.StuckThreshold = 30
	}
	if c.Simulation.SyncPeriod == 0 {
		c.Simulation.SyncPeriod = 900
	}
	if c.Partitioning.NumParts == 0 {
		c.Partitioning.NumParts = 1
	}
	if c.Partitioning.Method == "" {
		c.Partitioning.Method = "none"
	}
	if c.Services.Routing.Mode == "" {
		c.Services.Routing.Mode = "off"
	}
	if c.Services.Routing.Workers == 0 {
		c.Services.Routing.Workers = 2
	}
	if c.Services.Routing.QueueSize == 0 {
		c.Services.Routing.QueueSize = 1024
	}
	if c.Services.Routing.Fallback == "" {
		c.Services.Routing.Fallback = "keep-route"
	}
}

// Validate checks ranges and name sets. A failing config aborts the run
// before any partition starts.
func (c *Config) Validate() error {
	if c.Simulation.StartTime < 0 {
		return errors.Errorf("start_time must be non-negative, got %d", c.Simulation.StartTime)
	}
	if c.Simulation.EndTime <= c.Simulation.StartTime {
		return errors.Errorf("end_time %d must be after start_time %d", c.Simulation.EndTime, c.Simulation.StartTime)
	}
	if c.Simulation.SampleSize <= 0 || c.Simulation.SampleSize > 1 {
		return errors.Errorf("sample_size must be in (0, 1], got %f", c.Simulation.SampleSize)
	}
	if c.Simulation.StuckThreshold <= 0 {
		return errors.Errorf("stuck_threshold must be positive, got %d", c.Simulation.StuckThreshold)
	}
	if c.Simulation.SyncPeriod < 1 {
		return errors.Errorf("sync_period must be at least 1, got %d", c.Simulation.SyncPeriod)
	}
	if c.Partitioning.NumParts < 1 {
		return errors.Errorf("num_parts must be at least 1, got %d", c.Partitioning.NumParts)
	}
	if !ValidPartitioningMethods[c.Partitioning.Method] {
		return errors.Errorf("unknown partitioning method %q", c.Partitioning.Method)
	}
	if c.Partitioning.Method == "file" && c.Partitioning.Path == "" {
		return errors.New("partitioning method \"file\" requires a path")
	}
	if c.Scenario.Path == "" {
		return errors.New("scenario path is required")
	}
	r := c.Services.Routing
	if !ValidRoutingModes[r.Mode] {
		return errors.Errorf("unknown routing mode %q", r.Mode)
	}
	if r.Mode == "remote" && len(r.Endpoints) == 0 {
		return errors.New("routing mode \"remote\" requires at least one endpoint")
	}
	if r.Workers < 1 {
		return errors.Errorf("routing workers must be at least 1, got %d", r.Workers)
	}
	if r.QueueSize < 1 {
		return errors.Errorf("routing queue_size must be at least 1, got %d", r.QueueSize)
	}
	if !ValidFallbacks[r.Fallback] {
		return errors.Errorf("unknown routing fallback %q", r.Fallback)
	}
	return nil
}

// LinkParams derives the queue-model knobs links are built with.
func (c *Config) LinkParams() LinkParams {
	return LinkParams{
		SampleSize:        c.Simulation.SampleSize,
		EffectiveCellSize: DefaultEffectiveCellSize,
		StuckThreshold:    c.Simulation.StuckThreshold,
	}
}
