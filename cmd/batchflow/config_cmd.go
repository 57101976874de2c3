package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/pkg/config"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

var (
	configFormat string
	forceInit    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging every configuration file, the
BATCHFLOW_* environment variables and the flags given on the command line.

Examples:
  batchflow config show
  batchflow config show --format toml --min-size 3`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long: `Write the default configuration to path (default ./.batchflow.yaml).
The format follows the extension: .toml writes TOML, anything else YAML.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, toml)")
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	var name string
	switch configFormat {
	case "yaml", "yml":
		name = "config.yaml"
	case "toml":
		name = "config.toml"
	default:
		return bferrors.InvalidParameter("format", configFormat, "yaml or toml")
	}
	data, err := cfg.Marshal(name)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ".batchflow.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.NewManagerWithPaths().Save(path); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write configuration").
			WithContext("path", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
