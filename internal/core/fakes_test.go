package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// --- Test doubles shared by the core tests ---

// fakeAPI is an in-memory SavedItemsAPI. pages is keyed by cursor; the first
// page lives under "".
type fakeAPI struct {
	mu sync.Mutex

	pages     map[string]*models.SavedPage
	pageErrs  map[string]error
	users     map[string]*models.UserInfo
	channels  map[string]*models.ChannelInfo
	userErr   error
	unsaveErr error

	listCursors []string
	listLimits  []int
	userCalls   map[string]int
	chanCalls   map[string]int
	unsaved     []models.ItemRef
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:     make(map[string]*models.SavedPage),
		pageErrs:  make(map[string]error),
		users:     make(map[string]*models.UserInfo),
		channels:  make(map[string]*models.ChannelInfo),
		userCalls: make(map[string]int),
		chanCalls: make(map[string]int),
	}
}

func (f *fakeAPI) ListSavedItems(_ context.Context, cursor string, limit int) (*models.SavedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCursors = append(f.listCursors, cursor)
	f.listLimits = append(f.listLimits, limit)
	if err, ok := f.pageErrs[cursor]; ok {
		return nil, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return &models.SavedPage{}, nil
	}
	return page, nil
}

func (f *fakeAPI) ResolveUser(_ context.Context, id string) (*models.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls[id]++
	if f.userErr != nil {
		return nil, f.userErr
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, &RemoteError{Op: "users.info", Kind: KindNotFound, Code: "user_not_found"}
}

func (f *fakeAPI) ResolveChannel(_ context.Context, id string) (*models.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chanCalls[id]++
	if c, ok := f.channels[id]; ok {
		return c, nil
	}
	return nil, &RemoteError{Op: "conversations.info", Kind: KindNotFound, Code: "channel_not_found"}
}

func (f *fakeAPI) UnsaveItem(_ context.Context, ref models.ItemRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsaveErr != nil {
		return f.unsaveErr
	}
	f.unsaved = append(f.unsaved, ref)
	return nil
}

// memLedger is an in-memory DedupLedger.
type memLedger struct {
	keys    map[string]bool
	adds    []string
	loads   int
	saves   int
	loadErr error
}

func newMemLedger(keys ...string) *memLedger {
	l := &memLedger{keys: make(map[string]bool)}
	for _, k := range keys {
		l.keys[k] = true
	}
	return l
}

func (l *memLedger) Load() error { l.loads++; return l.loadErr }

func (l *memLedger) Contains(key string) bool { return l.keys[key] }

func (l *memLedger) Add(key string) error {
	l.adds = append(l.adds, key)
	l.keys[key] = true
	return nil
}

func (l *memLedger) Remove(key string) error { delete(l.keys, key); return nil }

func (l *memLedger) Keys() []string {
	out := make([]string, 0, len(l.keys))
	for k := range l.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *memLedger) Save() error  { l.saves++; return nil }
func (l *memLedger) Close() error { return nil }

// recordingSink records every task it is asked to create.
type recordingSink struct {
	titles  []string
	bodies  []string
	dryRuns []bool
	// fail makes CreateTask return false for titles in the set.
	fail map[string]bool
	// onCreate runs after each call.
	onCreate func()
}

func (s *recordingSink) CreateTask(_ context.Context, title, body string, dryRun bool) bool {
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
	s.dryRuns = append(s.dryRuns, dryRun)
	if s.onCreate != nil {
		s.onCreate()
	}
	return !s.fail[title]
}

// memQueue is an in-memory RemovalQueue.
type memQueue struct {
	refs []models.ItemRef
}

func (q *memQueue) Enqueue(ref models.ItemRef, _ string) error {
	q.refs = append(q.refs, ref)
	return nil
}

func (q *memQueue) Drain(fn func(models.ItemRef) error) (int, int, error) {
	var remaining []models.ItemRef
	retried := 0
	for _, ref := range q.refs {
		if err := fn(ref); err != nil {
			remaining = append(remaining, ref)
			continue
		}
		retried++
	}
	q.refs = remaining
	return retried, len(remaining), nil
}

func (q *memQueue) Len() (int, error) { return len(q.refs), nil }

// recordingSleeper records requested sleeps without blocking.
type recordingSleeper struct {
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

// recordingEvents captures events by type.
type recordingEvents struct {
	types []string
	data  []map[string]any
}

func (e *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	e.types = append(e.types, eventType)
	e.data = append(e.data, data)
	return nil
}

func (e *recordingEvents) count(eventType string) int {
	n := 0
	for _, t := range e.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func rateLimited(retryAfter time.Duration) error {
	return &RemoteError{Op: "test", Kind: KindRateLimited, Code: "ratelimited", RetryAfter: retryAfter}
}

var errBoom = errors.New("boom")

func msg(channel, ts, author, text string) *models.MessageItem {
	return &models.MessageItem{ChannelID: channel, Timestamp: ts, AuthorID: author, Text: text}
}
