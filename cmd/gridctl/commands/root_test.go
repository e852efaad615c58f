package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/dyluth/turtlegrid/internal/config"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/sim"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "gridctl",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "gridctl", "Help should show command name")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "gridctl",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	testRoot.SetArgs([]string{"--unknown-flag", "value"})

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()
	assert.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag", "Error should mention unknown flag")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	for _, name := range []string{"clear", "pixel", "text", "reset", "freeze", "thaw", "size", "errors", "watch", "agents", "startup", "shutdown", "restart", "sim", "fleet"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func configCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "")
	return cmd
}

func TestLoadConfig_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv(config.EnvInstance, "")
	t.Setenv(config.EnvRedisURL, "")
	cmd := configCommand()
	configPath = filepath.Join(t.TempDir(), "turtlegrid.yml")
	instanceName, redisURL = "lobby", ""
	t.Cleanup(func() { instanceName = "" })

	require.NoError(t, loadConfig(cmd))
	assert.Equal(t, "lobby", cfg.Instance, "--name overrides the default")
	assert.Equal(t, config.Default().RedisURL, cfg.RedisURL)
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	cmd := configCommand()
	require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yml")))

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestSetupLogging_RejectsUnknownLevelAndFormat(t *testing.T) {
	t.Cleanup(func() { logLevel, logFormat = "warn", "text" })
	buf := new(bytes.Buffer)

	logLevel, logFormat = "loud", "text"
	assert.Error(t, setupLogging(buf))

	logLevel, logFormat = "debug", "xml"
	assert.Error(t, setupLogging(buf))

	logLevel, logFormat = "info", "json"
	assert.NoError(t, setupLogging(buf))
}

func TestPixelCommand_RequiresTriples(t *testing.T) {
	assert.Error(t, pixelCmd.Args(pixelCmd, nil))
	assert.Error(t, pixelCmd.Args(pixelCmd, []string{"1", "2"}))
	assert.NoError(t, pixelCmd.Args(pixelCmd, []string{"1", "2", "red", "3", "4", "f"}))
}

func TestParsePixels(t *testing.T) {
	pixels, err := parsePixels([]string{"1", "2", "red", "3", "4", "f"})
	require.NoError(t, err)
	assert.Equal(t, []gridbus.Pixel{
		{X: 1, Y: 2, Color: grid.Red},
		{X: 3, Y: 4, Color: grid.Black},
	}, pixels)

	_, err = parsePixels([]string{"x", "2", "red"})
	assert.Error(t, err)

	_, err = parsePixels([]string{"1", "2", "mauve"})
	assert.Error(t, err)
}

func TestParseColorArg_RejectsNone(t *testing.T) {
	_, err := parseColorArg("none")
	assert.Error(t, err)

	c, err := parseColorArg("lightBlue")
	require.NoError(t, err)
	assert.Equal(t, grid.LightBlue, c)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestTurtleNamesMatchFleetEnv(t *testing.T) {
	c := config.Default()
	c.Instance = "wall"
	env := config.AgentEnvFor(c, "http://world:9090", sim.TurtleName(3))
	assert.Equal(t, "turtle_3", env.Turtle)
	assert.Contains(t, env.Environ(), "TURTLEGRID_TURTLE=turtle_3")
}

func TestLoadConfig_RejectsBadNameFlag(t *testing.T) {
	t.Setenv(config.EnvInstance, "")
	cmd := configCommand()
	configPath = filepath.Join(t.TempDir(), "turtlegrid.yml")
	instanceName = "Not_Valid"
	t.Cleanup(func() { instanceName = "" })

	assert.Error(t, loadConfig(cmd))
}

func TestPortOf(t *testing.T) {
	port, err := portOf(":8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	port, err = portOf("127.0.0.1:9")
	require.NoError(t, err)
	assert.Equal(t, 9, port)

	_, err = portOf("8080")
	assert.Error(t, err)
}
