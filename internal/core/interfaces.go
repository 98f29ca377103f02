package core

import (
	"context"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// SavedItemsAPI is the remote chat service as seen by the harvest
// pipeline. Implementations report failures as *RemoteError.
type SavedItemsAPI interface {
	ListSavedItems(ctx context.Context, cursor string, limit int) (*models.SavedPage, error)
	ResolveUser(ctx context.Context, id string) (*models.UserInfo, error)
	ResolveChannel(ctx context.Context, id string) (*models.ChannelInfo, error)
	UnsaveItem(ctx context.Context, ref models.ItemRef) error
}

// DedupLedger is the persisted set of keys already turned into tasks.
type DedupLedger interface {
	Load() error
	Contains(key string) bool
	Add(key string) error
	Remove(key string) error
	Keys() []string
	Save() error
	Close() error
}

// DefaultScriptTimeout bounds one interpreter invocation.
const DefaultScriptTimeout = 30 * time.Second

// TaskSink creates a task in the target application. It reports failure
// through its result and never returns an error to the caller.
type TaskSink interface {
	CreateTask(ctx context.Context, title, body string, dryRun bool) bool
}

// RemovalQueue persists saved-item removals that failed so a later run can
// retry them.
type RemovalQueue interface {
	Enqueue(ref models.ItemRef, reason string) error
	Drain(fn func(ref models.ItemRef) error) (retried, failed int, err error)
	Len() (int, error)
}

// Selector narrows the list of items about to be imported, for example
// through an interactive picker.
type Selector interface {
	Select(items []models.HarvestedItem, titles []string) ([]models.HarvestedItem, error)
}

// RunObserver receives progress from the orchestrator. All methods are
// called from the goroutine running the import.
type RunObserver interface {
	PhaseChanged(phase Phase)
	ItemStarted(index, total int, title string)
	ItemFinished(index int, ok bool)
	Report(stats models.RunStatistics)
}

// RunReporter publishes the final statistics of a run to an external
// destination such as a metrics file or a webhook.
type RunReporter interface {
	Publish(stats models.RunStatistics) error
}
