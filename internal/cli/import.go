package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/saved-sync/internal/core"
)

var (
	importDryRun bool
	importRemove bool
	importForce  bool
	importLimit  int
	importPick   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create OmniFocus tasks from saved Slack items",
	Long: `Fetch every saved item from Slack and create one OmniFocus inbox task per
item that has not been imported before.

Use --dry-run to see what would be created without touching OmniFocus or
the ledger, --force to import items again even if the ledger has them, and
--remove to unsave each item in Slack once its task exists.

Individual item failures are reported in the summary and never stop the
run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewImporter == nil {
			return fmt.Errorf("importer not initialized")
		}
		if importLimit < 0 {
			return fmt.Errorf("--limit must not be negative, got %d", importLimit)
		}

		opts := core.RunOptions{
			DryRun: importDryRun,
			Force:  importForce,
			Remove: importRemove,
			Limit:  importLimit,
		}
		if !cmd.Flags().Changed("remove") && Config != nil {
			opts.Remove = Config.Options.RemoveAfterImport
		}
		if importPick {
			if !stdinIsTerminal() {
				return fmt.Errorf("--pick needs an interactive terminal")
			}
			opts.Selector = &teaSelector{in: os.Stdin, out: cmd.OutOrStdout()}
		}

		out := cmd.OutOrStdout()
		var dryRunOut io.Writer
		if importDryRun {
			dryRunOut = out
		}

		orch, release, err := NewImporter(cmd.Context(), newProgressPrinter(out, terminalWidth()), dryRunOut)
		if err != nil {
			return err
		}
		defer func() { _ = release() }()

		_, err = orch.Run(cmd.Context(), opts)
		if err != nil {
			if core.IsInterrupted(err) {
				return ErrInterrupted
			}
			return fmt.Errorf("import: %w", err)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVarP(&importDryRun, "dry-run", "n", false, "Show the tasks that would be created without creating them")
	importCmd.Flags().BoolVar(&importRemove, "remove", false, "Unsave each item in Slack after its task is created (default from options.remove_after_import)")
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Import items again even if they are in the ledger")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "Import at most N saved items (0 for all)")
	importCmd.Flags().BoolVar(&importPick, "pick", false, "Choose the items to import in an interactive list")
	rootCmd.AddCommand(importCmd)
}
