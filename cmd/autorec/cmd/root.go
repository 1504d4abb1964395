// Package cmd implements the CLI commands for autorec.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/autorec/autorec/internal/config"
	"github.com/autorec/autorec/internal/observability"
	"github.com/autorec/autorec/internal/version"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string

	// cfg is populated by the persistent pre-run for every command.
	cfg *config.Config
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "autorec",
	Short:   "Unattended USB camera recording appliance",
	Version: version.Short(),
	Long: `autorec waits for a USB camera and microphone to appear, negotiates the
best capture formats the hardware offers, and records continuously into
timestamped files until the devices go away or the disk runs short.

It is built to run headless: devices may be plugged and unplugged at any
time, and every recording is finalized cleanly no matter how it ends.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initRuntime()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./autorec.yaml, ~/.config/autorec, /etc/autorec)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// initRuntime loads configuration and installs the process logger.
//
// Priority order for logging settings (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only when explicitly set
//  2. Environment variables (AUTOREC_LOGGING_LEVEL, AUTOREC_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults
func initRuntime() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Flags are applied after Load instead of bound into viper: binding
	// would override env/config even when the flag is at its default.
	stringFlagOverride(rootCmd.PersistentFlags(), "log-level", &c.Logging.Level)
	stringFlagOverride(rootCmd.PersistentFlags(), "log-format", &c.Logging.Format)
	c.Logging.Normalize()

	cfg = c
	observability.SetDefault(observability.NewLogger(c.Logging))
	return nil
}

// stringFlagOverride copies a flag value over dst when the flag was set
// explicitly on the command line.
func stringFlagOverride(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

// intFlagOverride is stringFlagOverride for integer flags.
func intFlagOverride(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}
