package cli

import (
	"context"
	"io"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/internal/observability"
	"github.com/valter-silva-au/saved-sync/internal/storage"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// Service instances, set by the initializer installed from main.
var (
	Config      *models.Config
	Removals    storage.RemovalQueue
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator

	// OpenLedger returns the loaded ledger. It holds the ledger lock until
	// the caller closes it.
	OpenLedger func() (storage.LedgerManager, error)

	// NewImporter resolves the Slack credential and returns an orchestrator
	// for one run together with a release func for the state it locked.
	NewImporter func(ctx context.Context, observer core.RunObserver, dryRunOut io.Writer) (core.ImportOrchestrator, func() error, error)
)

// Initializer builds the services above from the configuration file.
type Initializer func(configPath string, verbose bool) error

var (
	initialize Initializer
	shutdown   func() error
)

// SetInitializer installs the function that builds the services before a
// command runs, and the function that releases them after Execute.
func SetInitializer(init Initializer, done func() error) {
	initialize = init
	shutdown = done
}
