package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/saved-sync/internal/storage"
)

// completeLedgerKeys completes the single key argument of the ledger
// commands. Shell completion skips the normal initializer, so the services
// are built here on demand.
func completeLedgerKeys(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if OpenLedger == nil && initialize != nil {
		if err := initialize(configPath, false); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
	}

	var keys []string
	_ = withLedger(func(l storage.LedgerManager) error {
		for _, key := range l.Keys() {
			if strings.HasPrefix(key, toComplete) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	return keys, cobra.ShellCompDirectiveNoFileComp
}
