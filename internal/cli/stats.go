package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/saved-sync/internal/observability"
)

var (
	statsJSON  bool
	statsSince string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display import metrics and active alerts",
	Long: `Display metrics aggregated from the event log: runs, tasks imported,
failures and items by kind, followed by any active alerts (failed last run,
no recent import, items failing repeatedly, removal backlog).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := observability.ParseSince(statsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		var alerts []observability.Alert
		if AlertEngine != nil {
			alerts, err = AlertEngine.Evaluate()
			if err != nil {
				return fmt.Errorf("evaluating alerts: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			data, err := json.MarshalIndent(struct {
				Metrics *observability.Metrics `json:"metrics"`
				Alerts  []observability.Alert  `json:"alerts"`
			}{metrics, alerts}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		printMetrics(out, metrics, sinceTime)
		printAlerts(out, alerts)
		return nil
	},
}

func printMetrics(out io.Writer, m *observability.Metrics, since time.Time) {
	if since.IsZero() {
		fmt.Fprint(out, "Metrics (all time)\n\n")
	} else {
		fmt.Fprintf(out, "Metrics (since %s)\n\n", since.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", m.EventCount)
	fmt.Fprintf(out, "  %-24s %d (%d dry runs)\n", "Runs:", m.Runs, m.DryRuns)
	fmt.Fprintf(out, "  %-24s %d\n", "Tasks imported:", m.TasksImported)
	fmt.Fprintf(out, "  %-24s %d\n", "Skipped duplicates:", m.SkippedDuplicates)
	fmt.Fprintf(out, "  %-24s %d\n", "Failures:", m.Failures)
	fmt.Fprintf(out, "  %-24s %d\n", "Unsaved in Slack:", m.ItemsRemoved)
	fmt.Fprintf(out, "  %-24s %d\n", "API calls:", m.RemoteCalls)

	if len(m.ItemsByKind) > 0 {
		kinds := make([]string, 0, len(m.ItemsByKind))
		for k := range m.ItemsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(out, "\n  Imported by kind:")
		for _, k := range kinds {
			fmt.Fprintf(out, "    %-20s %d\n", k+":", m.ItemsByKind[k])
		}
	}

	if m.LastRunAt != nil {
		fmt.Fprintf(out, "\n  %-24s %s (%d errors)\n", "Last run:", m.LastRunAt.Format(time.RFC3339), m.LastRunErrors)
	}
}

func printAlerts(out io.Writer, alerts []observability.Alert) {
	fmt.Fprintln(out)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No active alerts.")
		return
	}

	fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
	for _, alert := range alerts {
		severity := strings.ToUpper(string(alert.Severity))
		fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
		fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output metrics and alerts as JSON")
	statsCmd.Flags().StringVar(&statsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h; empty for all time)")
	rootCmd.AddCommand(statsCmd)
}
