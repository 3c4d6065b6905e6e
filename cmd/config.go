package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/devsite/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate the effective configuration",
	Long: `Print the configuration devsite would run with after merging defaults,
.devsite.yml, .env and DEVSITE_ environment variables.

Examples:
  devsite config                       # Same as 'config show'
  devsite config show                  # Effective configuration as YAML
  devsite config validate              # Report errors and warnings
  DEVSITE_SERVER_PORT=8080 devsite config show`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := marshalConfig(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	config.SetDefaults(viper.GetViper())
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Configuration file: %s\n", used)
	}

	result := config.ValidateWithDetails(cfg)
	fmt.Fprint(out, result.String())
	if result.HasErrors() {
		return errors.New("configuration is invalid")
	}
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
