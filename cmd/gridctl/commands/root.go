package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/dyluth/turtlegrid/internal/config"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath   string
	instanceName string
	redisURL     string
	logLevel     string
	logFormat    string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gridctl",
	Short: "gridctl - controller for turtle grid displays",
	Long: `gridctl drives a display built from a grid of turtles, one per pixel.

Every turtle discovers its own position and listens on the bus for
broadcast, per-cell and per-pixel commands. gridctl is the controller:
it draws text and pixels, powers the fleet on and off in batches, asks
the display for its size and watches the bus.

gridctl sim runs a complete simulated display in-process.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(cmd.ErrOrStderr()); err != nil {
			return err
		}
		return loadConfig(cmd)
	},
	// If no subcommand is specified, show help
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to turtlegrid.yml")
	flags.StringVarP(&instanceName, "name", "n", "", "Display instance name (overrides config and "+config.EnvInstance+")")
	flags.StringVar(&redisURL, "redis", "", "Redis URL (overrides config and "+config.EnvRedisURL+")")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return printer.Error(
			"invalid log level",
			fmt.Sprintf("Unknown level: %s", logLevel),
			[]string{"Valid levels: debug, info, warn, error"},
		)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return printer.Error(
			"invalid log format",
			fmt.Sprintf("Unknown format: %s", logFormat),
			[]string{"Valid formats: text, json"},
		)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly.
func loadConfig(cmd *cobra.Command) error {
	loaded, err := config.Load(configPath)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
		cfg.ApplyEnv()
	default:
		return printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"config": configPath},
			[]string{"Fix the file, or remove it to run with defaults"},
		)
	}

	if instanceName != "" {
		if err := config.ValidateInstanceName(instanceName); err != nil {
			return printer.Error(
				"invalid instance name",
				err.Error(),
				[]string{"Use lowercase letters, digits and inner hyphens, e.g. --name lobby-wall"},
			)
		}
		cfg.Instance = instanceName
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	return nil
}
