package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

func TestRemovalQueue_EnqueueAndList(t *testing.T) {
	dir := t.TempDir()
	q := NewRemovalQueue(dir)

	ref := models.ItemRef{ChannelID: "C1", Timestamp: "1.0"}
	if err := q.Enqueue(ref, "ratelimited"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ref, "again"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(models.ItemRef{FileID: "F1"}, "timeout"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	list, err := q.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("queued = %d, want 2 (duplicates collapse)", len(list))
	}
	if list[0].Ref != ref || list[0].Reason != "ratelimited" || list[0].QueuedAt.IsZero() {
		t.Errorf("first entry = %+v", list[0])
	}
}

func TestRemovalQueue_DrainKeepsFailures(t *testing.T) {
	dir := t.TempDir()
	q := NewRemovalQueue(dir)
	ok := models.ItemRef{ChannelID: "C1", Timestamp: "1.0"}
	bad := models.ItemRef{FileID: "F1"}
	q.Enqueue(ok, "x")
	q.Enqueue(bad, "x")

	retried, failed, err := q.Drain(func(ref models.ItemRef) error {
		if ref == bad {
			return errors.New("still failing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if retried != 1 || failed != 1 {
		t.Errorf("retried=%d failed=%d, want 1/1", retried, failed)
	}

	list, _ := q.List()
	if len(list) != 1 || list[0].Ref != bad || list[0].Attempts != 1 || list[0].Reason != "still failing" {
		t.Errorf("remaining = %+v", list)
	}
}

func TestRemovalQueue_DrainEmptyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	q := NewRemovalQueue(dir)
	q.Enqueue(models.ItemRef{FileID: "F1"}, "x")

	if _, _, err := q.Drain(func(models.ItemRef) error { return nil }); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, RemovalQueueFileName)); !os.IsNotExist(err) {
		t.Errorf("queue file should be removed once empty, stat err = %v", err)
	}
	if n, err := q.Len(); err != nil || n != 0 {
		t.Errorf("Len = %d, %v", n, err)
	}

	calls := 0
	retried, failed, err := q.Drain(func(models.ItemRef) error { calls++; return nil })
	if err != nil || retried != 0 || failed != 0 || calls != 0 {
		t.Errorf("draining an empty queue: retried=%d failed=%d calls=%d err=%v", retried, failed, calls, err)
	}
}

func TestRemovalQueue_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, RemovalQueueFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	q := NewRemovalQueue(dir)
	if _, err := q.Len(); err == nil {
		t.Error("expected a parse error")
	}
	if err := q.Enqueue(models.ItemRef{FileID: "F1"}, "x"); err == nil {
		t.Error("Enqueue should surface the parse error")
	}
}
