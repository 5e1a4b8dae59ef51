package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the effective configuration",
	Long: `Load config.yaml (with TRADER_* environment overrides and defaults applied),
validate it and print the result as YAML. API keys, secrets and webhook URLs
are redacted.

Example:
  TRADER_EXCHANGE_APIKEY=... trading-bot config --config ./config`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
