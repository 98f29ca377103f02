package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const (
	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 100
	// DefaultPageDelay spaces consecutive page requests.
	DefaultPageDelay = time.Second
)

// PartialHarvestError reports that pagination stopped early. The items
// fetched before the failure are still returned alongside it.
type PartialHarvestError struct {
	Page    int
	Fetched int
	Err     error
}

func (e *PartialHarvestError) Error() string {
	return fmt.Sprintf("harvest stopped at page %d after %d items: %v", e.Page, e.Fetched, e.Err)
}

func (e *PartialHarvestError) Unwrap() error { return e.Err }

// Paginator fetches every saved item by following continuation cursors.
type Paginator struct {
	API       SavedItemsAPI
	Caller    *RetryingCaller
	PageSize  int
	PageDelay time.Duration
	// Limit caps the number of items returned; zero means no cap.
	Limit   int
	Sleeper Sleeper
	Logger  *slog.Logger
}

// FetchAll returns all saved items in service order. When a page fails the
// items accumulated so far are returned with a *PartialHarvestError.
func (p *Paginator) FetchAll(ctx context.Context) ([]models.HarvestedItem, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if p.Limit > 0 && p.Limit < pageSize {
		pageSize = p.Limit
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = RealSleeper
	}

	var items []models.HarvestedItem
	used := make(map[string]struct{})
	cursor := ""

	for page := 1; ; page++ {
		current := cursor
		resp, err := Call(ctx, p.Caller, "list_saved_items", func(ctx context.Context) (*models.SavedPage, error) {
			return p.API.ListSavedItems(ctx, current, pageSize)
		})
		if err != nil {
			logger.Error("fetching saved items page failed", "page", page, "fetched", len(items), "error", err)
			return items, &PartialHarvestError{Page: page, Fetched: len(items), Err: err}
		}

		items = append(items, resp.Items...)
		logger.Debug("fetched saved items page", "page", page, "items", len(resp.Items), "total", len(items))

		if p.Limit > 0 && len(items) >= p.Limit {
			return items[:p.Limit], nil
		}

		next := resp.NextCursor
		if next == "" {
			return items, nil
		}
		if _, seen := used[next]; seen || next == current {
			logger.Warn("service repeated a pagination cursor, stopping", "page", page, "cursor", next)
			return items, nil
		}
		used[current] = struct{}{}
		cursor = next

		if p.PageDelay > 0 {
			if err := sleeper.Sleep(ctx, p.PageDelay); err != nil {
				return items, &PartialHarvestError{Page: page + 1, Fetched: len(items), Err: err}
			}
		}
	}
}
