package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with defaults applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		data, err := yaml.Marshal(redactConfig(*Config))
		if err != nil {
			return fmt.Errorf("formatting configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", Config.Path, data)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Check the configuration file for errors",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipInitAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := core.NewConfigurationManager(core.DefaultHome())
		cfg, err := mgr.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", cfg.Path)
		return nil
	},
}

// redactConfig hides secrets that may be stored inline.
func redactConfig(cfg models.Config) models.Config {
	if cfg.Slack.Token != "" {
		cfg.Slack.Token = redacted
	}
	if cfg.Notifications.WebhookURL != "" {
		cfg.Notifications.WebhookURL = redacted
	}
	return cfg
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
