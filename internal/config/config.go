// Package config loads and validates splitdeck configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Isolation levels for cross-test contamination handling.
const (
	IsolationRelaxed = "relaxed"
	IsolationStrict  = "strict"
)

// Config is the top-level configuration for splitdeck.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Monitor MonitorConfig `yaml:"monitor"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig governs admission decisions. Runtime updates apply to future
// decisions only; already-deployed tests are never evicted by a change.
type EngineConfig struct {
	// MaxSimultaneousTests is the slot-pool capacity.
	MaxSimultaneousTests int `yaml:"max_simultaneous_tests"`

	// DefaultTrafficAllocation is the percentage granted to tests that do
	// not carry their own traffic request.
	DefaultTrafficAllocation float64 `yaml:"default_traffic_allocation"`

	// MinimumSegmentSize is the smallest audience a test should target.
	// Smaller audiences are admitted with a warning.
	MinimumSegmentSize int `yaml:"minimum_segment_size"`

	// CrossTestIsolationLevel is "relaxed" or "strict". Under strict, a
	// high-risk contamination finding rejects the candidate.
	CrossTestIsolationLevel string `yaml:"cross_test_isolation_level"`

	// HighUtilizationPercent is the traffic-budget watermark above which
	// allocations succeed with a warning attached.
	HighUtilizationPercent float64 `yaml:"high_utilization_percent"`

	// HighRequestPercent flags any single request above it as unusually
	// large. The request still succeeds.
	HighRequestPercent float64 `yaml:"high_request_percent"`
}

// MonitorConfig governs the recurring analytics loop.
type MonitorConfig struct {
	// Interval between monitoring snapshots.
	Interval time.Duration `yaml:"interval"`

	// ActivatorInterval between scans for due schedules.
	ActivatorInterval time.Duration `yaml:"activator_interval"`

	// CPUWarningPercent and MemoryWarningPercent bound the simulated
	// resource figures before a performance warning is emitted.
	CPUWarningPercent    float64 `yaml:"cpu_warning_percent"`
	MemoryWarningPercent float64 `yaml:"memory_warning_percent"`
}

// JournalConfig configures the SQLite event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format: "json" or "text".
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Engine.MaxSimultaneousTests <= 0 {
		c.Engine.MaxSimultaneousTests = 25
	}
	if c.Engine.DefaultTrafficAllocation <= 0 {
		c.Engine.DefaultTrafficAllocation = 10
	}
	if c.Engine.MinimumSegmentSize <= 0 {
		c.Engine.MinimumSegmentSize = 500
	}
	if c.Engine.CrossTestIsolationLevel == "" {
		c.Engine.CrossTestIsolationLevel = IsolationRelaxed
	}
	if c.Engine.HighUtilizationPercent <= 0 {
		c.Engine.HighUtilizationPercent = 80
	}
	if c.Engine.HighRequestPercent <= 0 {
		c.Engine.HighRequestPercent = 30
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 30 * time.Second
	}
	if c.Monitor.ActivatorInterval <= 0 {
		c.Monitor.ActivatorInterval = time.Second
	}
	if c.Monitor.CPUWarningPercent <= 0 {
		c.Monitor.CPUWarningPercent = 80
	}
	if c.Monitor.MemoryWarningPercent <= 0 {
		c.Monitor.MemoryWarningPercent = 85
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "splitdeck.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Engine.MaxSimultaneousTests <= 0 {
		return fmt.Errorf("engine.max_simultaneous_tests must be positive, got %d", c.Engine.MaxSimultaneousTests)
	}
	if c.Engine.DefaultTrafficAllocation <= 0 || c.Engine.DefaultTrafficAllocation > 100 {
		return fmt.Errorf("engine.default_traffic_allocation must be in (0, 100], got %v", c.Engine.DefaultTrafficAllocation)
	}
	switch c.Engine.CrossTestIsolationLevel {
	case IsolationRelaxed, IsolationStrict:
	default:
		return fmt.Errorf("engine.cross_test_isolation_level must be %q or %q, got %q",
			IsolationRelaxed, IsolationStrict, c.Engine.CrossTestIsolationLevel)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %v", c.Monitor.Interval)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}
	return nil
}

// Load reads a YAML configuration file, expanding environment variables,
// applying defaults, and validating the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
