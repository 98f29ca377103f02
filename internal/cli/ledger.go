package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/saved-sync/internal/storage"
)

var (
	ledgerListPrefix string
	ledgerListLimit  int
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and edit the record of imported items",
	Long: `The ledger holds the key of every saved item that has been turned into a
task. Message keys are "<channel>/<ts>", file keys are the file permalink.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported item keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l storage.LedgerManager) error {
			out := cmd.OutOrStdout()
			shown := 0
			for _, key := range l.Keys() {
				if ledgerListPrefix != "" && !strings.HasPrefix(key, ledgerListPrefix) {
					continue
				}
				if ledgerListLimit > 0 && shown >= ledgerListLimit {
					break
				}
				fmt.Fprintln(out, key)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No imported items.")
			}
			return nil
		})
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Report whether an item key has been imported",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l storage.LedgerManager) error {
			if l.Contains(args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not imported\n", args[0])
			}
			return nil
		})
	},
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <key>",
	Short: "Remove a key so the item is imported again on the next run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l storage.LedgerManager) error {
			if err := l.Remove(args[0]); err != nil {
				if errors.Is(err, storage.ErrKeyNotFound) {
					return fmt.Errorf("%s is not in the ledger", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
			return nil
		})
	},
}

var ledgerPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the ledger file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		fmt.Fprintln(cmd.OutOrStdout(), storage.LedgerPath(Config.State.Dir))
		return nil
	},
}

// withLedger opens the ledger for fn and releases its lock afterwards.
func withLedger(fn func(l storage.LedgerManager) error) error {
	if OpenLedger == nil {
		return fmt.Errorf("ledger not initialized")
	}
	l, err := OpenLedger()
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	return fn(l)
}

func init() {
	ledgerListCmd.Flags().StringVar(&ledgerListPrefix, "prefix", "", "Only list keys starting with this prefix (e.g. a channel id)")
	ledgerListCmd.Flags().IntVar(&ledgerListLimit, "limit", 0, "List at most N keys (0 for all)")

	ledgerCheckCmd.ValidArgsFunction = completeLedgerKeys
	ledgerForgetCmd.ValidArgsFunction = completeLedgerKeys

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerForgetCmd)
	ledgerCmd.AddCommand(ledgerPathCmd)
	rootCmd.AddCommand(ledgerCmd)
}
