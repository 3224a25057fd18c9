package cmd

import (
	"fmt"

	"github.com/boltpack/boltpack/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for viewing and managing configuration.`,
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	Long: `Display the currently loaded configuration: directory roots, signing
key paths, upstream verification settings, HTTP and worker pool tuning.

Examples:
  boltpack config show              # Show parsed configuration in YAML format`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Redact sensitive fields for display
	if cfg.Signing.Passphrase != "" {
		cfg.Signing.Passphrase = "***REDACTED***"
	}

	output, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	fmt.Fprintln(realStdout, string(output))
	return nil
}
