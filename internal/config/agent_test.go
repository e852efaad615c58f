package config

import (
	"strings"
	"testing"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAgentEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range []string{
		EnvInstance, EnvRedisURL, EnvWorld, EnvTurtle, EnvTopology, EnvMarkers, EnvPalette,
		EnvStateDir, EnvFont, EnvHealthAddr, EnvResolveInterval, EnvReconcileInterval,
	} {
		t.Setenv(key, env[key])
	}
}

func requiredAgentEnv() map[string]string {
	return map[string]string{
		EnvInstance: "lobby",
		EnvRedisURL: "redis://redis:6379",
		EnvWorld:    "http://world:9090",
		EnvTurtle:   "turtle_3",
	}
}

func TestLoadAgentEnv_Defaults(t *testing.T) {
	setAgentEnv(t, requiredAgentEnv())

	env, err := LoadAgentEnv()
	require.NoError(t, err)

	assert.Equal(t, "lobby", env.Instance)
	assert.Equal(t, "turtle_3", env.Turtle)
	assert.Equal(t, grid.Chained, env.Topology)
	assert.Equal(t, "minecraft:red_wool", env.Markers.Top)
	assert.Equal(t, "/var/lib/turtlegrid", env.StateDir)
	assert.Equal(t, ":8080", env.HealthAddr)
	assert.Equal(t, time.Second, env.ResolveInterval)
	assert.Equal(t, 5*time.Second, env.ReconcileInterval)
}

func TestLoadAgentEnv_Overrides(t *testing.T) {
	vars := requiredAgentEnv()
	vars[EnvTopology] = "horizontal"
	vars[EnvMarkers] = "minecraft:gold_block, minecraft:iron_block"
	vars[EnvPalette] = `{"red":"minecraft:red_concrete"}`
	vars[EnvResolveInterval] = "250ms"
	setAgentEnv(t, vars)

	env, err := LoadAgentEnv()
	require.NoError(t, err)

	assert.Equal(t, grid.Bordered, env.Topology)
	assert.Equal(t, Markers{Top: "minecraft:gold_block", Left: "minecraft:iron_block"}, env.Markers)
	assert.Equal(t, 250*time.Millisecond, env.ResolveInterval)

	items, err := env.Items()
	require.NoError(t, err)
	assert.Equal(t, "minecraft:red_concrete", items[grid.Red])
}

func TestLoadAgentEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing instance", EnvInstance, "", EnvInstance},
		{"missing redis", EnvRedisURL, "", EnvRedisURL},
		{"missing world", EnvWorld, "", EnvWorld},
		{"missing turtle", EnvTurtle, "", EnvTurtle},
		{"bad topology", EnvTopology, "diagonal", EnvTopology},
		{"bad markers", EnvMarkers, "minecraft:gold_block", EnvMarkers},
		{"bad palette json", EnvPalette, "[1,2]", EnvPalette},
		{"bad palette colour", EnvPalette, `{"mauve":"minecraft:stone"}`, "palette"},
		{"bad interval", EnvReconcileInterval, "soon", EnvReconcileInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := requiredAgentEnv()
			vars[tt.key] = tt.value
			setAgentEnv(t, vars)

			_, err := LoadAgentEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAgentEnvFor_RoundTripsThroughEnviron(t *testing.T) {
	cfg := Default()
	cfg.Instance = "lobby"
	cfg.Topology = "bordered"
	cfg.Palette = map[string]string{"black": "minecraft:black_concrete"}
	cfg.Agent.Font = "/fonts/term.fbmp"

	want := AgentEnvFor(cfg, "http://world:9090", "turtle_0")
	want.StateDir = "/data"

	vars := map[string]string{}
	for _, kv := range want.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		require.True(t, ok, kv)
		vars[key] = value
	}
	setAgentEnv(t, vars)

	got, err := LoadAgentEnv()
	require.NoError(t, err)
	want.HealthAddr = ":8080"
	assert.Equal(t, want, got)
}
