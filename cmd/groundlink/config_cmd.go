package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/config"
	"github.com/muurk/groundlink/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var (
	initForce bool
	initTOML  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration",
	Long: `Write an example configuration with one serial interface and one TCP
listener, both framed on the CCSDS attached sync marker.

The file goes to --config when given, otherwise to the platform config
directory.`,
	Example: `  groundlink config init
  groundlink config init --toml
  groundlink config init -c ./groundlink.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" && initTOML {
			dir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, "config.toml")
		}

		written, err := config.CreateDefaultConfig(path, initForce)
		if err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration written",
			ui.Param{Key: "Path", Value: written},
			ui.Param{Key: "Format", Value: string(config.FormatForPath(written))},
		)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration with defaults filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.FindConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		data, err := cfg.Encode(config.FormatForPath(path))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := ui.NewPrinter(cmd.OutOrStdout())
		path, err := config.FindConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			printer.PrintError("Invalid configuration", err)
			return err
		}
		printer.PrintSuccess("Configuration is valid",
			ui.Param{Key: "Path", Value: path},
			ui.Param{Key: "Interfaces", Value: fmt.Sprintf("%d", len(cfg.Interfaces))},
			ui.Param{Key: "Listeners", Value: fmt.Sprintf("%d", len(cfg.Listeners))},
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().BoolVar(&initTOML, "toml", false, "Write TOML instead of YAML")
}
