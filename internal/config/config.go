package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where gridctl looks for configuration when --config is not
// given.
const DefaultPath = "turtlegrid.yml"

// Environment variables that override the file.
const (
	EnvInstance = "TURTLEGRID_INSTANCE"
	EnvRedisURL = "REDIS_URL"
)

// Config represents the top-level turtlegrid.yml configuration
type Config struct {
	Version  string `yaml:"version"`
	Instance string `yaml:"instance"`
	RedisURL string `yaml:"redis_url"`

	// Topology is chained (alias vertical) or bordered (alias horizontal).
	Topology string  `yaml:"topology"`
	Markers  Markers `yaml:"markers,omitempty"`

	// Palette overrides the item used for a colour. Keys are anything
	// grid.ParseColor accepts.
	Palette map[string]string `yaml:"palette,omitempty"`

	Agent      AgentConfig      `yaml:"agent,omitempty"`
	Controller ControllerConfig `yaml:"controller,omitempty"`
	Fleet      FleetConfig      `yaml:"fleet,omitempty"`
	Sim        SimConfig        `yaml:"sim,omitempty"`
}

// Markers names the edge marker items of a bordered grid.
type Markers struct {
	Top  string `yaml:"top"`
	Left string `yaml:"left"`
}

// AgentConfig tunes the agent runtime
type AgentConfig struct {
	ResolveInterval   time.Duration `yaml:"resolve_interval,omitempty"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval,omitempty"`
	StateDir          string        `yaml:"state_dir,omitempty"`
	HealthAddr        string        `yaml:"health_addr,omitempty"`
	Font              string        `yaml:"font,omitempty"` // FBMP glyph bitmap; text renders as background without it
}

// ControllerConfig tunes the controller
type ControllerConfig struct {
	BatchSize     int           `yaml:"batch_size,omitempty"`
	StartupDelay  time.Duration `yaml:"startup_delay,omitempty"`
	ShutdownDelay time.Duration `yaml:"shutdown_delay,omitempty"`
	SizeTimeout   time.Duration `yaml:"size_timeout,omitempty"`
	SizeInterval  time.Duration `yaml:"size_interval,omitempty"`
	StealSettle   time.Duration `yaml:"steal_settle,omitempty"`
}

// FleetConfig selects how agents are powered
type FleetConfig struct {
	Driver  string `yaml:"driver,omitempty"`  // "docker" or "sim"
	Image   string `yaml:"image,omitempty"`   // Docker image of agent containers
	Network string `yaml:"network,omitempty"` // Docker network mode of agent containers
	World   string `yaml:"world,omitempty"`   // World server URL as seen from agent containers

	// HealthPortBase is the host port of agent 0's health endpoint; agent i
	// uses HealthPortBase+i.
	HealthPortBase int `yaml:"health_port_base,omitempty"`
}

// SimConfig sizes the simulated wall, in agents
type SimConfig struct {
	Width     int   `yaml:"width,omitempty"`
	Height    int   `yaml:"height,omitempty"`
	Seed      int64 `yaml:"seed,omitempty"`
	Unstocked bool  `yaml:"unstocked,omitempty"` // Start with an empty shared chest
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Instance == "" {
		c.Instance = "default"
	}
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379"
	}
	if c.Topology == "" {
		c.Topology = string(grid.Chained)
	}
	if c.Markers.Top == "" {
		c.Markers.Top = "minecraft:red_wool"
	}
	if c.Markers.Left == "" {
		c.Markers.Left = "minecraft:blue_wool"
	}
	if c.Agent.ResolveInterval == 0 {
		c.Agent.ResolveInterval = time.Second
	}
	if c.Agent.ReconcileInterval == 0 {
		c.Agent.ReconcileInterval = 5 * time.Second
	}
	if c.Agent.StateDir == "" {
		c.Agent.StateDir = ".turtlegrid"
	}
	if c.Agent.HealthAddr == "" {
		c.Agent.HealthAddr = ":8080"
	}
	if c.Controller.BatchSize == 0 {
		c.Controller.BatchSize = 100
	}
	if c.Controller.StartupDelay == 0 {
		c.Controller.StartupDelay = 5 * time.Second
	}
	if c.Controller.ShutdownDelay == 0 {
		c.Controller.ShutdownDelay = time.Second
	}
	if c.Controller.SizeTimeout == 0 {
		c.Controller.SizeTimeout = 5 * time.Second
	}
	if c.Controller.SizeInterval == 0 {
		c.Controller.SizeInterval = time.Second
	}
	if c.Controller.StealSettle == 0 {
		c.Controller.StealSettle = time.Second
	}
	if c.Fleet.Driver == "" {
		c.Fleet.Driver = "docker"
	}
	if c.Fleet.Image == "" {
		c.Fleet.Image = "turtlegrid/turtle:latest"
	}
	if c.Fleet.Network == "" {
		c.Fleet.Network = "host"
	}
	if c.Fleet.World == "" {
		c.Fleet.World = "http://localhost:9090"
	}
	if c.Fleet.HealthPortBase == 0 {
		c.Fleet.HealthPortBase = 18080
	}
	if c.Sim.Width == 0 {
		c.Sim.Width = grid.CellWidth * 2
	}
	if c.Sim.Height == 0 {
		c.Sim.Height = grid.CellHeight
	}
}

// ApplyEnv overrides the instance name and Redis URL from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvInstance); v != "" {
		c.Instance = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := ValidateInstanceName(c.Instance); err != nil {
		return err
	}

	if _, err := grid.ParseTopology(c.Topology); err != nil {
		return err
	}

	if c.Markers.Top == c.Markers.Left {
		return fmt.Errorf("markers.top and markers.left must differ (both %q)", c.Markers.Top)
	}

	items, err := c.Items()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item == c.Markers.Top || item == c.Markers.Left {
			return fmt.Errorf("marker item %q is also a palette item", item)
		}
	}

	if c.Controller.BatchSize < 1 {
		return fmt.Errorf("controller.batch_size must be >= 1, got %d", c.Controller.BatchSize)
	}
	for name, d := range map[string]time.Duration{
		"agent.resolve_interval":    c.Agent.ResolveInterval,
		"agent.reconcile_interval":  c.Agent.ReconcileInterval,
		"controller.startup_delay":  c.Controller.StartupDelay,
		"controller.shutdown_delay": c.Controller.ShutdownDelay,
		"controller.size_timeout":   c.Controller.SizeTimeout,
		"controller.size_interval":  c.Controller.SizeInterval,
		"controller.steal_settle":   c.Controller.StealSettle,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if c.Fleet.Driver != "docker" && c.Fleet.Driver != "sim" {
		return fmt.Errorf("invalid fleet.driver: %s (must be 'docker' or 'sim')", c.Fleet.Driver)
	}
	if c.Fleet.HealthPortBase < 1 || c.Fleet.HealthPortBase > 65535 {
		return fmt.Errorf("fleet.health_port_base must be a port number, got %d", c.Fleet.HealthPortBase)
	}

	if c.Sim.Width < 1 || c.Sim.Height < 1 {
		return fmt.Errorf("sim dimensions must be positive, got %dx%d", c.Sim.Width, c.Sim.Height)
	}

	return nil
}

// TopologyKind returns the parsed topology. Call after Validate.
func (c *Config) TopologyKind() grid.Topology {
	t, _ := grid.ParseTopology(c.Topology)
	return t
}

// Items returns the default palette items with the configured overrides
// applied.
func (c *Config) Items() (storage.Items, error) {
	items := storage.DefaultItems()
	for key, item := range c.Palette {
		color, err := grid.ParseColor(key)
		if err != nil {
			return nil, fmt.Errorf("palette: %w", err)
		}
		if color == grid.None {
			return nil, fmt.Errorf("palette: %q is not a colour", key)
		}
		items[color] = item
	}
	if err := items.Validate(); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	return items, nil
}

// Load reads turtlegrid.yml from the specified path, applies defaults and
// environment overrides, and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.applyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
