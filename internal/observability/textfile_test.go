package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

func TestTextfileExporter_Publish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "ssync.prom")
	e := NewTextfileExporter(path)
	e.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := e.Publish(models.RunStatistics{ItemsSeen: 4, TasksCreated: 3, Errors: 1, RemoteCalls: 6})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`ssync_last_run_items{outcome="created"} 3`,
		`ssync_last_run_items{outcome="seen"} 4`,
		`ssync_last_run_items{outcome="errors"} 1`,
		`ssync_last_run_items{outcome="remote_calls"} 6`,
		`ssync_last_run_timestamp_seconds 1.7e+09`,
		`ssync_last_run_dry_run 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestTextfileExporter_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssync.prom")
	e := NewTextfileExporter(path)

	if err := e.Publish(models.RunStatistics{TasksCreated: 9}); err != nil {
		t.Fatal(err)
	}
	if err := e.Publish(models.RunStatistics{TasksCreated: 1, DryRun: true}); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	out := string(data)
	if !strings.Contains(out, `ssync_last_run_items{outcome="created"} 1`) || strings.Contains(out, "} 9") {
		t.Errorf("textfile should hold only the last run:\n%s", out)
	}
	if !strings.Contains(out, "ssync_last_run_dry_run 1") {
		t.Errorf("dry run gauge not set:\n%s", out)
	}
}
