// Package internal provides the App struct that wires all components of
// saved-sync together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/valter-silva-au/saved-sync/internal/cli"
	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/internal/integration"
	"github.com/valter-silva-au/saved-sync/internal/observability"
	"github.com/valter-silva-au/saved-sync/internal/storage"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// App holds all service dependencies of saved-sync.
type App struct {
	Config    *models.Config
	ConfigMgr core.ConfigurationManager
	Logger    *slog.Logger

	// Storage layer
	Removals storage.RemovalQueue

	// Integration services
	Executor    integration.CLIExecutor
	Credentials *integration.CredentialResolver

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Reporters   []core.RunReporter

	// newAPI builds the Slack client for a token. Tests replace it.
	newAPI func(token string) core.SavedItemsAPI
}

// NewApp loads the configuration at configPath (or the default location)
// and wires every service. Log records go to logOut. It does not resolve
// the Slack credential; NewImporter does that before the first remote call.
func NewApp(configPath string, verbose bool, logOut io.Writer) (*App, error) {
	app := &App{ConfigMgr: core.NewConfigurationManager(core.DefaultHome())}

	// --- Configuration ---
	cfg, err := app.ConfigMgr.Load(configPath)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	app.Logger = observability.NewLogger(logOut, level, cfg.Log.Format)

	// --- Storage layer ---
	app.Removals = storage.NewRemovalQueue(cfg.State.Dir)

	// --- Integration services ---
	app.Executor = integration.NewCLIExecutor()
	app.Credentials = integration.NewCredentialResolver(app.Executor, filepath.Dir(cfg.Path), app.Logger)
	app.newAPI = func(token string) core.SavedItemsAPI {
		return integration.NewSlackClient(token, cfg.Slack.BaseURL, cfg.Slack.RequestsPerSecond)
	}

	// --- Observability ---
	eventLogPath := filepath.Join(cfg.State.Dir, observability.EventLogFileName)
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: run without events, metrics and alerts.
		app.Logger.Warn("event log disabled", "path", eventLogPath, "error", err)
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds(), app.Removals.Len)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Metrics.Textfile != "" {
		app.Reporters = append(app.Reporters, observability.NewTextfileExporter(cfg.Metrics.Textfile))
	}
	if cfg.Notifications.WebhookURL != "" {
		notifier := observability.NewSlackNotifier(cfg.Notifications.WebhookURL, cfg.Notifications.OnlyOnErrors)
		notifier.Alerts = app.AlertEngine
		app.Reporters = append(app.Reporters, notifier)
	}

	return app, nil
}

// OpenLedger returns the loaded ledger, locked until closed.
func (a *App) OpenLedger() (storage.LedgerManager, error) {
	l := storage.NewLedgerManager(a.Config.State.Dir)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewImporter resolves the Slack credential and assembles an orchestrator
// for one run. The returned func releases the ledger lock taken by the run.
func (a *App) NewImporter(ctx context.Context, observer core.RunObserver, dryRunOut io.Writer) (core.ImportOrchestrator, func() error, error) {
	token, source, err := a.Credentials.Resolve(ctx, a.Config.Slack)
	if err != nil {
		return nil, nil, err
	}

	runID := uuid.NewString()
	logger := observability.WithRun(a.Logger, runID)
	logger.Debug("slack credential resolved", "source", source)

	sink := integration.NewOmniFocusSink(a.Config.OmniFocus, a.Executor, logger)
	sink.DryRunOut = dryRunOut

	ledger := storage.NewLedgerManager(a.Config.State.Dir)
	opts := a.Config.Options

	cfg := core.OrchestratorConfig{
		API:       a.newAPI(token),
		Ledger:    ledger,
		Sink:      sink,
		Removals:  a.Removals,
		Observer:  observer,
		Reporters: a.Reporters,
		Logger:    a.Logger,
		NewRunID:  func() string { return runID },

		TaskPrefix:       opts.TaskPrefix,
		TitleStyle:       opts.TitleStyle,
		IncludeLink:      opts.AddSlackLink,
		PageSize:         opts.PageSize,
		PageDelay:        opts.PageDelay,
		MaxAttempts:      opts.MaxAPIRetries,
		RetryDefaultWait: opts.RetryDefaultWait,
		BatchResolve:     opts.BatchResolve,
	}
	if a.EventLog != nil {
		cfg.Events = observability.NewRecorder(a.EventLog)
	}

	return core.NewImportOrchestrator(cfg), ledger.Close, nil
}

// Close releases the event log.
func (a *App) Close() error {
	if a.EventLog == nil {
		return nil
	}
	return a.EventLog.Close()
}

// Install publishes the services to the CLI layer.
func (a *App) Install() {
	cli.Config = a.Config
	cli.Removals = a.Removals
	cli.EventLog = a.EventLog
	cli.AlertEngine = a.AlertEngine
	cli.MetricsCalc = a.MetricsCalc
	cli.OpenLedger = a.OpenLedger
	cli.NewImporter = a.NewImporter
}

// Bootstrap returns the CLI initializer and the matching shutdown func.
// The App is built lazily so commands like version run without a
// configuration file.
func Bootstrap(logOut io.Writer) (cli.Initializer, func() error) {
	var app *App
	initialize := func(configPath string, verbose bool) error {
		a, err := NewApp(configPath, verbose, logOut)
		if err != nil {
			if errors.Is(err, core.ErrConfigNotFound) {
				return fmt.Errorf("%w (create one, or pass --config)", err)
			}
			return err
		}
		app = a
		app.Install()
		return nil
	}
	shutdown := func() error {
		if app == nil {
			return nil
		}
		return app.Close()
	}
	return initialize, shutdown
}
