package cli

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/internal/observability"
	"github.com/valter-silva-au/saved-sync/internal/storage"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// isolate saves the package-level services and restores them when the test
// ends. Services start out nil.
func isolate(t *testing.T) {
	t.Helper()
	origConfig, origRemovals, origEventLog := Config, Removals, EventLog
	origAlerts, origMetrics := AlertEngine, MetricsCalc
	origOpen, origImporter := OpenLedger, NewImporter
	origInit, origShutdown := initialize, shutdown
	t.Cleanup(func() {
		Config, Removals, EventLog = origConfig, origRemovals, origEventLog
		AlertEngine, MetricsCalc = origAlerts, origMetrics
		OpenLedger, NewImporter = origOpen, origImporter
		initialize, shutdown = origInit, origShutdown
	})

	Config, Removals, EventLog = nil, nil, nil
	AlertEngine, MetricsCalc = nil, nil
	OpenLedger, NewImporter = nil, nil
	initialize, shutdown = nil, nil
}

// runCLI executes the root command with args and returns what it printed
// on stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	return out.String(), err
}

// resetFlags puts every flag back to its default, since cobra keeps parsed
// values on the package-level commands between executions.
func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset(c.Flags())
		reset(c.PersistentFlags())
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// tempLedger returns an opener over a ledger in a temp dir, seeded with keys.
func tempLedger(t *testing.T, keys ...string) (string, func() (storage.LedgerManager, error)) {
	t.Helper()
	dir := t.TempDir()

	open := func() (storage.LedgerManager, error) {
		l := storage.NewLedgerManager(dir)
		if err := l.Load(); err != nil {
			return nil, err
		}
		return l, nil
	}

	l, err := open()
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	for _, k := range keys {
		if err := l.Add(k); err != nil {
			t.Fatalf("adding %s: %v", k, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("closing ledger: %v", err)
	}
	return dir, open
}

// --- Fakes ---

type metricsMock struct {
	metrics *observability.Metrics
	err     error
	since   time.Time
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	m.since = since
	return m.metrics, m.err
}

type alertsMock struct {
	alerts []observability.Alert
	err    error
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.alerts, m.err
}

// fakeOrchestrator records the options it ran with and replays a fixed
// run through the observer.
type fakeOrchestrator struct {
	observer core.RunObserver
	titles   []string
	stats    models.RunStatistics
	err      error

	ran  bool
	opts core.RunOptions
}

func (f *fakeOrchestrator) Run(_ context.Context, opts core.RunOptions) (*models.RunStatistics, error) {
	f.ran = true
	f.opts = opts
	f.observer.PhaseChanged(core.PhaseFetching)
	f.observer.PhaseChanged(core.PhaseSubmitting)
	for i, title := range f.titles {
		f.observer.ItemStarted(i+1, len(f.titles), title)
		f.observer.ItemFinished(i+1, true)
	}
	f.observer.Report(f.stats)
	return &f.stats, f.err
}

func (f *fakeOrchestrator) Phase() core.Phase { return core.PhaseDone }

// installImporter points NewImporter at orch and counts releases.
func installImporter(orch *fakeOrchestrator, releases *int) {
	NewImporter = func(_ context.Context, observer core.RunObserver, _ io.Writer) (core.ImportOrchestrator, func() error, error) {
		orch.observer = observer
		return orch, func() error { *releases++; return nil }, nil
	}
}
