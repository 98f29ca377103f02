package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// RunOptions are the per-invocation switches of an import.
type RunOptions struct {
	DryRun bool
	// Force imports items whose key is already in the ledger.
	Force bool
	// Remove unsaves each item on the chat service after its task exists.
	Remove bool
	// Limit caps the number of harvested items; zero means all.
	Limit int
	// Selector, when set, lets the user narrow the items to import.
	Selector Selector
}

// ImportOrchestrator runs the harvest → filter → submit pipeline.
type ImportOrchestrator interface {
	Run(ctx context.Context, opts RunOptions) (*models.RunStatistics, error)
	Phase() Phase
}

// OrchestratorConfig wires the collaborators and settings of an
// ImportOrchestrator. Removals, Events, Observer, Reporters and NewRunID
// are optional.
type OrchestratorConfig struct {
	API       SavedItemsAPI
	Ledger    DedupLedger
	Sink      TaskSink
	Removals  RemovalQueue
	Events    EventLogger
	Observer  RunObserver
	Reporters []RunReporter
	Logger    *slog.Logger
	Sleeper   Sleeper
	NewRunID  func() string

	TaskPrefix       string
	TitleStyle       models.TitleStyle
	IncludeLink      bool
	PageSize         int
	PageDelay        time.Duration
	MaxAttempts      int
	RetryDefaultWait time.Duration
	BatchResolve     bool
}

type importOrchestrator struct {
	cfg   OrchestratorConfig
	phase Phase
}

// NewImportOrchestrator creates an ImportOrchestrator from cfg.
func NewImportOrchestrator(cfg OrchestratorConfig) ImportOrchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = RealSleeper
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = func() string { return time.Now().UTC().Format("20060102T150405Z") }
	}
	return &importOrchestrator{cfg: cfg, phase: PhaseIdle}
}

func (o *importOrchestrator) Phase() Phase {
	return o.phase
}

// Run performs one import pass. Per-item failures are counted, never
// returned; the error result is reserved for failures that prevent the run
// from starting and for cancellation, in which case the statistics of the
// work done so far are returned too.
func (o *importOrchestrator) Run(ctx context.Context, opts RunOptions) (*models.RunStatistics, error) {
	if o.phase == PhaseDone {
		if err := o.enter(PhaseIdle); err != nil {
			return nil, err
		}
	}
	if o.phase != PhaseIdle {
		return nil, fmt.Errorf("%w: run already in progress (%s)", ErrInvalidTransition, o.phase)
	}

	if err := o.cfg.Ledger.Load(); err != nil {
		return nil, fmt.Errorf("loading import ledger: %w", err)
	}

	stats := &models.RunStatistics{RunID: o.cfg.NewRunID(), DryRun: opts.DryRun}
	logger := o.cfg.Logger.With("run_id", stats.RunID)

	caller := &RetryingCaller{
		MaxAttempts:    o.cfg.MaxAttempts,
		DefaultBackoff: o.cfg.RetryDefaultWait,
		Sleeper:        o.cfg.Sleeper,
		Logger:         logger,
		OnAttempt:      func(string) { stats.RemoteCalls++ },
	}
	users := NewUserResolver(o.cfg.API, caller, logger)
	channels := NewChannelResolver(o.cfg.API, caller, logger)
	countFailure := func(string, error) { stats.Errors++ }
	users.OnFailure = countFailure
	channels.OnFailure = countFailure

	o.logEvent(logger, EventRunStarted, map[string]any{
		"run_id":  stats.RunID,
		"dry_run": opts.DryRun,
		"force":   opts.Force,
		"remove":  opts.Remove,
		"limit":   opts.Limit,
	})

	var runErr error

	// Fetching.
	if err := o.enter(PhaseFetching); err != nil {
		return nil, err
	}
	paginator := &Paginator{
		API:       o.cfg.API,
		Caller:    caller,
		PageSize:  o.cfg.PageSize,
		PageDelay: o.cfg.PageDelay,
		Limit:     opts.Limit,
		Sleeper:   o.cfg.Sleeper,
		Logger:    logger,
	}
	items, err := paginator.FetchAll(ctx)
	if err != nil {
		stats.Errors++
		if ctx.Err() != nil {
			runErr = ctx.Err()
		}
	}
	stats.ItemsSeen = len(items)
	logger.Info("harvest complete", "items", len(items))

	// Resolving.
	if err := o.enter(PhaseResolving); err != nil {
		return nil, err
	}
	if o.cfg.BatchResolve && runErr == nil {
		userIDs, channelIDs := collectIDs(items)
		u := users.Prefetch(ctx, userIDs)
		c := channels.Prefetch(ctx, channelIDs)
		logger.Debug("names prefetched", "users", u, "channels", c)
	}

	// Filtering.
	if err := o.enter(PhaseFiltering); err != nil {
		return nil, err
	}
	formatter := &Formatter{
		Prefix:      o.cfg.TaskPrefix,
		TitleStyle:  o.cfg.TitleStyle,
		IncludeLink: o.cfg.IncludeLink,
		Users:       users,
		Channels:    channels,
	}
	pending := make([]models.HarvestedItem, 0, len(items))
	for _, item := range items {
		key := models.DedupKey(item)
		if !opts.Force && key != "" && o.cfg.Ledger.Contains(key) {
			stats.SkippedDuplicates++
			o.logEvent(logger, EventItemSkipped, map[string]any{"key": key, "kind": string(item.Kind())})
			continue
		}
		pending = append(pending, item)
	}
	if opts.Selector != nil && len(pending) > 0 && runErr == nil {
		titles := make([]string, len(pending))
		for i, item := range pending {
			titles[i], _ = formatter.Format(ctx, item)
		}
		selected, err := opts.Selector.Select(pending, titles)
		if err != nil {
			logger.Warn("selection cancelled, nothing will be imported", "error", err)
			selected = nil
		}
		pending = selected
	}

	// Formatting and submitting.
	if err := o.enter(PhaseSubmitting); err != nil {
		return nil, err
	}
	if opts.Remove && !opts.DryRun && o.cfg.Removals != nil && runErr == nil {
		o.retryPendingRemovals(ctx, caller, stats, logger)
	}
	for i, item := range pending {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		o.submit(ctx, i+1, len(pending), item, formatter, caller, opts, stats, logger)
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	// Reporting.
	if err := o.enter(PhaseReporting); err != nil {
		return nil, err
	}
	if !opts.DryRun {
		if err := o.cfg.Ledger.Save(); err != nil {
			stats.Errors++
			logger.Error("saving import ledger failed", "error", err)
		}
	}
	o.logEvent(logger, EventRunCompleted, stats.AsMap())
	if o.cfg.Observer != nil {
		o.cfg.Observer.Report(*stats)
	}
	for _, r := range o.cfg.Reporters {
		if err := r.Publish(*stats); err != nil {
			logger.Warn("publishing run statistics failed", "error", err)
		}
	}
	logger.Info("run complete",
		"items_seen", stats.ItemsSeen,
		"tasks_created", stats.TasksCreated,
		"remote_calls", stats.RemoteCalls,
		"errors", stats.Errors,
	)

	if err := o.enter(PhaseDone); err != nil {
		return stats, err
	}
	return stats, runErr
}

func (o *importOrchestrator) submit(ctx context.Context, index, total int, item models.HarvestedItem, formatter *Formatter,
	caller *RetryingCaller, opts RunOptions, stats *models.RunStatistics, logger *slog.Logger) {

	title, body := formatter.Format(ctx, item)
	key := models.DedupKey(item)
	if o.cfg.Observer != nil {
		o.cfg.Observer.ItemStarted(index, total, title)
	}

	if !o.cfg.Sink.CreateTask(ctx, title, body, opts.DryRun) {
		stats.Errors++
		o.logEvent(logger, EventItemFailed, map[string]any{"key": key, "kind": string(item.Kind()), "title": title})
		if o.cfg.Observer != nil {
			o.cfg.Observer.ItemFinished(index, false)
		}
		return
	}

	stats.TasksCreated++
	if !opts.DryRun && key != "" {
		if err := o.cfg.Ledger.Add(key); err != nil {
			stats.Errors++
			logger.Error("recording imported key failed", "key", key, "error", err)
		}
	}
	o.logEvent(logger, EventItemImported, map[string]any{
		"key":     key,
		"kind":    string(item.Kind()),
		"title":   title,
		"dry_run": opts.DryRun,
	})

	if opts.Remove && !opts.DryRun {
		o.unsave(ctx, caller, item, stats, logger)
	}
	if o.cfg.Observer != nil {
		o.cfg.Observer.ItemFinished(index, true)
	}
}

func (o *importOrchestrator) unsave(ctx context.Context, caller *RetryingCaller, item models.HarvestedItem, stats *models.RunStatistics, logger *slog.Logger) {
	ref := models.RefFor(item)
	if ref.IsZero() {
		return
	}
	err := caller.Do(ctx, "unsave_item", func(ctx context.Context) error {
		return o.cfg.API.UnsaveItem(ctx, ref)
	})
	if err != nil {
		stats.Errors++
		logger.Warn("removing saved item failed", "ref", ref, "error", err)
		if o.cfg.Removals != nil && ctx.Err() == nil {
			if qerr := o.cfg.Removals.Enqueue(ref, err.Error()); qerr != nil {
				logger.Error("queueing failed removal", "ref", ref, "error", qerr)
			}
		}
		return
	}
	stats.ItemsRemoved++
	o.logEvent(logger, EventItemRemoved, map[string]any{"ref": ref})
}

func (o *importOrchestrator) retryPendingRemovals(ctx context.Context, caller *RetryingCaller, stats *models.RunStatistics, logger *slog.Logger) {
	retried, failed, err := o.cfg.Removals.Drain(func(ref models.ItemRef) error {
		return caller.Do(ctx, "unsave_item", func(ctx context.Context) error {
			return o.cfg.API.UnsaveItem(ctx, ref)
		})
	})
	if err != nil {
		stats.Errors++
		logger.Error("retrying queued removals", "error", err)
		return
	}
	stats.ItemsRemoved += retried
	if retried > 0 || failed > 0 {
		logger.Info("queued removals retried", "removed", retried, "still_pending", failed)
	}
}

func (o *importOrchestrator) enter(to Phase) error {
	if err := transition(&o.phase, to); err != nil {
		return err
	}
	if o.cfg.Observer != nil {
		o.cfg.Observer.PhaseChanged(to)
	}
	return nil
}

func (o *importOrchestrator) logEvent(logger *slog.Logger, eventType string, data map[string]any) {
	if o.cfg.Events == nil {
		return
	}
	if err := o.cfg.Events.LogEvent(eventType, data); err != nil {
		logger.Warn("writing event failed", "type", eventType, "error", err)
	}
}

// collectIDs gathers the user and channel ids referenced by items, in
// first-seen order.
func collectIDs(items []models.HarvestedItem) (users, channels []string) {
	for _, item := range items {
		switch it := item.(type) {
		case *models.MessageItem:
			users = append(users, it.AuthorID)
			channels = append(channels, it.ChannelID)
		case *models.FileItem:
			users = append(users, it.OwnerID)
		}
	}
	return users, channels
}

// IsInterrupted reports whether err came from a cancelled run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
