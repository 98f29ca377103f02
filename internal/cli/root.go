package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// ErrInterrupted is returned when a run was stopped by a signal.
var ErrInterrupted = errors.New("interrupted")

// skipInitAnnotation marks commands that run without the configured services.
const skipInitAnnotation = "ssync/skip-init"

var (
	configPath string
	verbose    bool
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "ssync",
	Short: "saved-sync - turn saved Slack items into OmniFocus inbox tasks",
	Long: `saved-sync (ssync) pulls the items you saved in Slack and creates one
OmniFocus inbox task per item.

Items already imported are remembered in a local ledger so repeated runs
only pick up what is new. Optionally the saved flag is removed in Slack
once the task exists.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsInit(cmd) || initialize == nil {
			return nil
		}
		return initialize(configPath, verbose)
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipInitAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ssync %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

// needsInit reports whether cmd uses the configured services.
func needsInit(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipInitAnnotation] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default $SSYNC_HOME/config.yaml or ~/.ssync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and releases the services afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if shutdown != nil {
		if cerr := shutdown(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
