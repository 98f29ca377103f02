package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// RemovalQueueFileName is the queue file inside the state directory.
const RemovalQueueFileName = "pending_removals.json"

// PendingRemoval is a saved-item removal that failed and awaits retry.
type PendingRemoval struct {
	Ref      models.ItemRef `json:"ref"`
	Reason   string         `json:"reason,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
	Attempts int            `json:"attempts"`
}

// RemovalQueue persists failed removals so a later run can replay them.
type RemovalQueue interface {
	Enqueue(ref models.ItemRef, reason string) error
	Drain(fn func(ref models.ItemRef) error) (retried, failed int, err error)
	Len() (int, error)
	List() ([]PendingRemoval, error)
}

// fileRemovalQueue implements RemovalQueue, persisting entries to a JSON
// file under basePath.
type fileRemovalQueue struct {
	basePath string
	mu       sync.Mutex
	now      func() time.Time
}

// NewRemovalQueue creates a RemovalQueue that stores its file under basePath.
func NewRemovalQueue(basePath string) RemovalQueue {
	return &fileRemovalQueue{basePath: basePath, now: time.Now}
}

func (q *fileRemovalQueue) filePath() string {
	return filepath.Join(q.basePath, RemovalQueueFileName)
}

// Enqueue adds ref to the queue. A ref already queued is not duplicated.
func (q *fileRemovalQueue) Enqueue(ref models.ItemRef, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.load()
	if err != nil {
		return fmt.Errorf("loading removal queue: %w", err)
	}
	for _, p := range queue {
		if p.Ref == ref {
			return nil
		}
	}
	queue = append(queue, PendingRemoval{Ref: ref, Reason: reason, QueuedAt: q.now().UTC()})
	return q.save(queue)
}

// Drain calls fn for every queued removal and keeps only those that failed
// again.
func (q *fileRemovalQueue) Drain(fn func(ref models.ItemRef) error) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.load()
	if err != nil {
		return 0, 0, fmt.Errorf("loading removal queue: %w", err)
	}
	if len(queue) == 0 {
		return 0, 0, nil
	}

	var remaining []PendingRemoval
	retried := 0
	for _, p := range queue {
		if err := fn(p.Ref); err != nil {
			p.Attempts++
			p.Reason = err.Error()
			remaining = append(remaining, p)
			continue
		}
		retried++
	}

	if err := q.save(remaining); err != nil {
		return retried, len(remaining), fmt.Errorf("saving remaining removals: %w", err)
	}
	return retried, len(remaining), nil
}

func (q *fileRemovalQueue) Len() (int, error) {
	list, err := q.List()
	return len(list), err
}

func (q *fileRemovalQueue) List() ([]PendingRemoval, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// load reads the queue file. A missing or empty file is an empty queue.
func (q *fileRemovalQueue) load() ([]PendingRemoval, error) {
	data, err := os.ReadFile(q.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var queue []PendingRemoval
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("parsing removal queue: %w", err)
	}
	return queue, nil
}

// save writes the queue. An empty queue removes the file.
func (q *fileRemovalQueue) save(queue []PendingRemoval) error {
	if len(queue) == 0 {
		err := os.Remove(q.filePath())
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if err := os.MkdirAll(q.basePath, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling removal queue: %w", err)
	}
	return writeFileAtomic(q.filePath(), data, 0o600)
}
