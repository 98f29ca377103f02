package core

import (
	"context"
	"log/slog"
	"strings"
)

// UnknownID is the placeholder the chat service uses when an author is not
// known. It is never looked up.
const UnknownID = "unknown"

// NameLookup resolves an opaque id to a display string.
type NameLookup interface {
	Resolve(ctx context.Context, id string) string
}

// Resolver resolves ids of one entity kind to display names, caching every
// outcome for the lifetime of the run. A failed lookup caches the id itself
// so the same id is never fetched twice.
type Resolver struct {
	kind   string
	lookup func(ctx context.Context, id string) (string, error)
	caller *RetryingCaller
	logger *slog.Logger
	cache  map[string]string

	// static answers ids that need no remote lookup.
	static func(id string) (string, bool)

	// OnFailure is called once per id whose lookup failed.
	OnFailure func(id string, err error)
}

// NewResolver creates a Resolver. lookup returns the extracted display
// name; an empty name falls back to the id.
func NewResolver(kind string, caller *RetryingCaller, logger *slog.Logger, lookup func(ctx context.Context, id string) (string, error)) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		kind:   kind,
		lookup: lookup,
		caller: caller,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// NewUserResolver resolves user ids through api. The name is the first
// non-empty of display name, real name and handle.
func NewUserResolver(api SavedItemsAPI, caller *RetryingCaller, logger *slog.Logger) *Resolver {
	return NewResolver("user", caller, logger, func(ctx context.Context, id string) (string, error) {
		info, err := api.ResolveUser(ctx, id)
		if err != nil {
			return "", err
		}
		return firstNonEmpty(info.DisplayName, info.RealName, info.Handle), nil
	})
}

// NewChannelResolver resolves channel ids through api to "#name". Direct
// message channels resolve to "DM" without a remote call.
func NewChannelResolver(api SavedItemsAPI, caller *RetryingCaller, logger *slog.Logger) *Resolver {
	r := NewResolver("channel", caller, logger, func(ctx context.Context, id string) (string, error) {
		info, err := api.ResolveChannel(ctx, id)
		if err != nil {
			return "", err
		}
		if info.Name == "" {
			return "", nil
		}
		return "#" + info.Name, nil
	})
	r.static = func(id string) (string, bool) {
		if isDirectMessage(id) {
			return "DM", true
		}
		return "", false
	}
	return r
}

// Resolve returns the display name for id, performing at most one remote
// lookup per id per run.
func (r *Resolver) Resolve(ctx context.Context, id string) string {
	if name, ok := r.cache[id]; ok {
		return name
	}
	if skipLookup(id) {
		return id
	}
	if r.static != nil {
		if name, ok := r.static(id); ok {
			r.cache[id] = name
			return name
		}
	}

	name, err := Call(ctx, r.caller, "resolve_"+r.kind, func(ctx context.Context) (string, error) {
		return r.lookup(ctx, id)
	})
	if err != nil {
		r.logger.Warn("name lookup failed, using id", "kind", r.kind, "id", id, "error", err)
		if r.OnFailure != nil {
			r.OnFailure(id, err)
		}
		r.cache[id] = id
		return id
	}
	if name == "" {
		name = id
	}
	r.cache[id] = name
	return name
}

// Cached reports the cached name for id, if any.
func (r *Resolver) Cached(id string) (string, bool) {
	name, ok := r.cache[id]
	return name, ok
}

// Prefetch resolves every id not yet cached so later formatting needs no
// remote calls. It returns the number of ids resolved.
func (r *Resolver) Prefetch(ctx context.Context, ids []string) int {
	looked := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if skipLookup(id) {
			continue
		}
		if _, ok := r.cache[id]; ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		r.Resolve(ctx, id)
		looked++
	}
	return looked
}

// Len returns the number of cached entries.
func (r *Resolver) Len() int {
	return len(r.cache)
}

func skipLookup(id string) bool {
	return id == "" || id == UnknownID
}

func isDirectMessage(channelID string) bool {
	return strings.HasPrefix(channelID, "D")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
