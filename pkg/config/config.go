package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	maxConfigSize = 1 << 20
	// one turn per nanosecond
	maxTurnsPerSecond = 1e9
)

var ErrInvalidConfig = errors.New("invalid config")

type ExperimentConfig struct {
	Name string `yaml:"name"`
	// Seed drives dispatch order and random peer selection; 0 seeds from the clock.
	Seed  uint64 `yaml:"seed"`
	Turns int    `yaml:"turns"`
	// TurnsPerSecond paces turns against the wall clock; 0 runs them back to back.
	TurnsPerSecond float64         `yaml:"turns_per_second"`
	Environment    EnvConfig       `yaml:"environment"`
	Agents         []AgentConfig   `yaml:"agents"`
	Provider       ProviderConfig  `yaml:"provider"`
	Logging        LogConfig       `yaml:"logging"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
}

type EnvConfig struct {
	RandomOrder    bool          `yaml:"random_order"`
	Parallel       bool          `yaml:"parallel"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	TurnDelay      time.Duration `yaml:"turn_delay"`
}

type AgentConfig struct {
	Kind string `yaml:"kind"`
	// Name prefixes the agents' names: <name>-0, <name>-1, ...
	Name   string         `yaml:"name"`
	Count  int            `yaml:"count"`
	Config map[string]any `yaml:"config,omitempty"`
}

type ProviderConfig struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	Tracing     bool   `yaml:"tracing"`
}

// Default returns the configuration used for any field a file leaves out.
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Name:  "colony",
		Turns: 10,
		Environment: EnvConfig{
			RandomOrder: true,
		},
		Agents: []AgentConfig{
			{Kind: "donor", Name: "donor", Count: 4},
		},
		Provider: ProviderConfig{
			Name:  "static",
			Model: "gpt-4o-mini",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file over the defaults and applies environment
// overrides. The result is not validated.
func LoadConfig(path string) (*ExperimentConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. A document that lists agents
// replaces the default population.
func Parse(data []byte) (*ExperimentConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(cfg *ExperimentConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from COLONY_SEED, COLONY_TURNS, COLONY_PARALLEL
// and COLONY_LOG_LEVEL when they are set.
func (c *ExperimentConfig) ApplyEnv() error {
	if v := os.Getenv("COLONY_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("COLONY_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("COLONY_TURNS"); v != "" {
		turns, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COLONY_TURNS: %w", err)
		}
		c.Turns = turns
	}
	if v := os.Getenv("COLONY_PARALLEL"); v != "" {
		parallel, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COLONY_PARALLEL: %w", err)
		}
		c.Environment.Parallel = parallel
		if parallel {
			c.Environment.RandomOrder = true
		}
	}
	if v := os.Getenv("COLONY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks that cfg describes a runnable experiment.
func (c *ExperimentConfig) Validate() error {
	var errs []error
	if c.Turns < 0 {
		errs = append(errs, fmt.Errorf("turns must not be negative, got %d", c.Turns))
	}
	if c.TurnsPerSecond < 0 || c.TurnsPerSecond > maxTurnsPerSecond {
		errs = append(errs, fmt.Errorf("turns_per_second must be between 0 and %g, got %v", float64(maxTurnsPerSecond), c.TurnsPerSecond))
	}
	if c.Environment.Parallel && !c.Environment.RandomOrder {
		errs = append(errs, errors.New("environment.parallel requires environment.random_order"))
	}
	if c.Environment.TurnDelay < 0 {
		errs = append(errs, fmt.Errorf("environment.turn_delay must not be negative, got %s", c.Environment.TurnDelay))
	}
	if c.Environment.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("environment.max_concurrency must not be negative, got %d", c.Environment.MaxConcurrency))
	}

	prefixes := make(map[string]bool)
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Kind) == "" {
			errs = append(errs, fmt.Errorf("agents[%d].kind is required", i))
		}
		if a.Count < 1 {
			errs = append(errs, fmt.Errorf("agents[%d].count must be positive, got %d", i, a.Count))
		}
		prefix := a.Prefix()
		if prefixes[prefix] {
			errs = append(errs, fmt.Errorf("agents[%d].name %q is used twice", i, prefix))
		}
		prefixes[prefix] = true
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Prefix returns the name agents of this group are numbered under.
func (a AgentConfig) Prefix() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Kind
}

// AgentNames returns the names of every agent of the group.
func (a AgentConfig) AgentNames() []string {
	names := make([]string, a.Count)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%d", a.Prefix(), i)
	}
	return names
}
