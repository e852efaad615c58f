package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
)

// Environment variables read by the agent process. The instance and Redis
// URL use EnvInstance and EnvRedisURL.
const (
	EnvWorld             = "TURTLEGRID_WORLD"
	EnvTurtle            = "TURTLEGRID_TURTLE"
	EnvTopology          = "TURTLEGRID_TOPOLOGY"
	EnvMarkers           = "TURTLEGRID_MARKERS" // "top,left"
	EnvPalette           = "TURTLEGRID_PALETTE" // JSON object, colour to item
	EnvStateDir          = "TURTLEGRID_STATE_DIR"
	EnvFont              = "TURTLEGRID_FONT"
	EnvHealthAddr        = "TURTLEGRID_HEALTH_ADDR"
	EnvResolveInterval   = "TURTLEGRID_RESOLVE_INTERVAL"
	EnvReconcileInterval = "TURTLEGRID_RECONCILE_INTERVAL"
)

// AgentEnv is the agent process's runtime configuration, loaded from
// environment variables. Required fields are validated at startup so a
// misconfigured container fails before it touches the bus.
type AgentEnv struct {
	// Instance is the display instance (from TURTLEGRID_INSTANCE)
	Instance string

	// RedisURL is the Redis connection string (from REDIS_URL)
	RedisURL string

	// World is the base URL of the world server (from TURTLEGRID_WORLD)
	World string

	// Turtle is the name of the turtle this agent drives (from TURTLEGRID_TURTLE)
	Turtle string

	Topology          grid.Topology
	Markers           Markers
	Palette           map[string]string
	StateDir          string
	Font              string
	HealthAddr        string
	ResolveInterval   time.Duration
	ReconcileInterval time.Duration
}

// LoadAgentEnv reads and validates the agent configuration from the
// environment.
func LoadAgentEnv() (*AgentEnv, error) {
	e := &AgentEnv{
		Instance:   os.Getenv(EnvInstance),
		RedisURL:   os.Getenv(EnvRedisURL),
		World:      os.Getenv(EnvWorld),
		Turtle:     os.Getenv(EnvTurtle),
		StateDir:   os.Getenv(EnvStateDir),
		Font:       os.Getenv(EnvFont),
		HealthAddr: os.Getenv(EnvHealthAddr),
	}

	e.Topology = grid.Chained
	if v := os.Getenv(EnvTopology); v != "" {
		topology, err := grid.ParseTopology(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTopology, err)
		}
		e.Topology = topology
	}

	if v := os.Getenv(EnvMarkers); v != "" {
		top, left, ok := strings.Cut(v, ",")
		if !ok {
			return nil, fmt.Errorf("%s must be \"top,left\", got %q", EnvMarkers, v)
		}
		e.Markers = Markers{Top: strings.TrimSpace(top), Left: strings.TrimSpace(left)}
	}

	if v := os.Getenv(EnvPalette); v != "" {
		if err := json.Unmarshal([]byte(v), &e.Palette); err != nil {
			return nil, fmt.Errorf("failed to parse %s as a JSON object: %w", EnvPalette, err)
		}
	}

	for name, dst := range map[string]*time.Duration{
		EnvResolveInterval:   &e.ResolveInterval,
		EnvReconcileInterval: &e.ReconcileInterval,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	e.applyDefaults()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *AgentEnv) applyDefaults() {
	defaults := Default()
	if e.Markers.Top == "" {
		e.Markers.Top = defaults.Markers.Top
	}
	if e.Markers.Left == "" {
		e.Markers.Left = defaults.Markers.Left
	}
	if e.StateDir == "" {
		e.StateDir = "/var/lib/turtlegrid"
	}
	if e.HealthAddr == "" {
		e.HealthAddr = defaults.Agent.HealthAddr
	}
	if e.ResolveInterval == 0 {
		e.ResolveInterval = defaults.Agent.ResolveInterval
	}
	if e.ReconcileInterval == 0 {
		e.ReconcileInterval = defaults.Agent.ReconcileInterval
	}
}

// Validate checks that all required fields are present.
func (e *AgentEnv) Validate() error {
	if e.Instance == "" {
		return fmt.Errorf("%s environment variable is required", EnvInstance)
	}
	if err := ValidateInstanceName(e.Instance); err != nil {
		return fmt.Errorf("%s: %w", EnvInstance, err)
	}
	if e.RedisURL == "" {
		return fmt.Errorf("%s environment variable is required", EnvRedisURL)
	}
	if e.World == "" {
		return fmt.Errorf("%s environment variable is required", EnvWorld)
	}
	if e.Turtle == "" {
		return fmt.Errorf("%s environment variable is required", EnvTurtle)
	}
	if e.ResolveInterval < 0 || e.ReconcileInterval < 0 {
		return fmt.Errorf("poll intervals must not be negative")
	}
	if _, err := e.Items(); err != nil {
		return err
	}
	return nil
}

// Items returns the palette with overrides applied.
func (e *AgentEnv) Items() (storage.Items, error) {
	c := Config{Palette: e.Palette}
	return c.Items()
}

// AgentEnvFor derives the environment of the agent driving turtle from a
// loaded configuration.
func AgentEnvFor(c *Config, world, turtle string) *AgentEnv {
	return &AgentEnv{
		Instance:          c.Instance,
		RedisURL:          c.RedisURL,
		World:             world,
		Turtle:            turtle,
		Topology:          c.TopologyKind(),
		Markers:           c.Markers,
		Palette:           c.Palette,
		Font:              c.Agent.Font,
		ResolveInterval:   c.Agent.ResolveInterval,
		ReconcileInterval: c.Agent.ReconcileInterval,
	}
}

// Environ renders e as KEY=value pairs that LoadAgentEnv reads back. Unset
// optional fields are left out so the agent's defaults apply.
func (e *AgentEnv) Environ() []string {
	env := []string{
		EnvInstance + "=" + e.Instance,
		EnvRedisURL + "=" + e.RedisURL,
		EnvWorld + "=" + e.World,
		EnvTurtle + "=" + e.Turtle,
	}
	if e.Topology != "" {
		env = append(env, EnvTopology+"="+string(e.Topology))
	}
	if e.Markers.Top != "" && e.Markers.Left != "" {
		env = append(env, EnvMarkers+"="+e.Markers.Top+","+e.Markers.Left)
	}
	if len(e.Palette) > 0 {
		data, _ := json.Marshal(e.Palette)
		env = append(env, EnvPalette+"="+string(data))
	}
	optional := []struct {
		key, value string
	}{
		{EnvStateDir, e.StateDir},
		{EnvFont, e.Font},
		{EnvHealthAddr, e.HealthAddr},
	}
	for _, o := range optional {
		if o.value != "" {
			env = append(env, o.key+"="+o.value)
		}
	}
	if e.ResolveInterval > 0 {
		env = append(env, EnvResolveInterval+"="+e.ResolveInterval.String())
	}
	if e.ReconcileInterval > 0 {
		env = append(env, EnvReconcileInterval+"="+e.ReconcileInterval.String())
	}
	return env
}
