// Groundlink is a command and telemetry link service for embedded and
// spacecraft devices.
//
// It opens serial, TCP or WebSocket links to devices (or accepts device
// connections), frames the raw byte stream into packets with a configurable
// protocol chain, and publishes the packets to NATS, a Redis current-value
// table and capture files. Commands travel the other way through the same
// chain.
//
// Usage:
//
//	groundlink [command] [flags]
//
// See 'groundlink --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/config"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "groundlink",
	Short: "Ground command and telemetry link",
	Long: `Groundlink moves packets between devices and the ground segment.

Interfaces and listeners are defined in a YAML or TOML config file. Each one
has a protocol chain that turns the raw byte stream into packets (sync
pattern search, leading byte discard) and turns outgoing commands back into
bytes.

Run 'groundlink config init' to write an example configuration.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: platform config dir, config.yaml or config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default $"+logging.LogLevelEnvVar+" or silent")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves and loads the config file. With applyLogLevel the
// file's log_level is used when neither the flag nor the environment set one.
func loadConfig(applyLogLevel bool) (*config.Config, error) {
	path, err := config.FindConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if applyLogLevel && logLevel == "" && os.Getenv(logging.LogLevelEnvVar) == "" && cfg.LogLevel != "" {
		if err := logging.Initialize(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("groundlink %s (commit: %s) %s %s\n", info.Version, info.Commit, info.GoVersion, info.Platform)
	},
}
