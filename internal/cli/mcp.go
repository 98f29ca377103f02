package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/saved-sync/internal/core"
	ssyncmcp "github.com/valter-silva-au/saved-sync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the ssync MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ssync MCP server on stdio",
	Long: `Start the ssync MCP server on stdio transport.

The server exposes the import ledger and metrics as MCP tools that AI
assistants can call: check_imported, list_imported, forget_imported,
get_import_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if OpenLedger == nil {
			return fmt.Errorf("ledger not initialized")
		}

		open := func() (core.DedupLedger, error) {
			l, err := OpenLedger()
			if err != nil {
				return nil, err
			}
			return l, nil
		}
		srv := ssyncmcp.NewServer(open, MetricsCalc, AlertEngine, appVersion)

		if err := srv.Run(cmd.Context()); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
