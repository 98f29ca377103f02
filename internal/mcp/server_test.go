package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/internal/observability"
	"github.com/valter-silva-au/saved-sync/internal/storage"
)

// --- Fake implementations ---

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	since   time.Time
}

func (f *fakeMetricsCalculator) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

// seededLedger writes keys to a ledger under a temp dir and returns an
// opener that loads it fresh for every call.
func seededLedger(t *testing.T, keys ...string) LedgerOpener {
	t.Helper()
	dir := t.TempDir()

	l := storage.NewLedgerManager(dir)
	if err := l.Load(); err != nil {
		t.Fatalf("loading ledger: %v", err)
	}
	for _, k := range keys {
		if err := l.Add(k); err != nil {
			t.Fatalf("adding %s: %v", k, err)
		}
	}
	if err := l.Save(); err != nil {
		t.Fatalf("saving ledger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("closing ledger: %v", err)
	}

	return func() (core.DedupLedger, error) {
		m := storage.NewLedgerManager(dir)
		if err := m.Load(); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeOutput reads the structured content of a result, falling back to
// its text content.
func decodeOutput(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.StructuredContent != nil {
		data, _ := json.Marshal(result.StructuredContent)
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("unmarshalling output: %v (text was: %s)", err, text)
	}
}

// --- Tests ---

func TestCheckImported(t *testing.T) {
	srv := NewServer(seededLedger(t, "C1/1.000100"), nil, nil, "test")

	tests := []struct {
		key  string
		want bool
	}{
		{"C1/1.000100", true},
		{"C1/2.000200", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			result := callTool(t, srv, "check_imported", map[string]any{"key": tt.key})
			if result.IsError {
				t.Fatalf("expected success, got error: %s", extractText(result))
			}
			var out checkImportedOutput
			decodeOutput(t, result, &out)
			if out.Imported != tt.want {
				t.Errorf("imported = %v, want %v", out.Imported, tt.want)
			}
		})
	}
}

func TestCheckImportedMissingKey(t *testing.T) {
	srv := NewServer(seededLedger(t), nil, nil, "test")

	result := callTool(t, srv, "check_imported", map[string]any{"key": ""})
	if !result.IsError {
		t.Fatal("expected error result for empty key")
	}
}

func TestListImported(t *testing.T) {
	srv := NewServer(seededLedger(t, "C2/3.0", "C1/1.0", "C1/2.0"), nil, nil, "test")

	result := callTool(t, srv, "list_imported", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out listImportedOutput
	decodeOutput(t, result, &out)

	want := []string{"C1/1.0", "C1/2.0", "C2/3.0"}
	if out.Count != 3 || out.Total != 3 {
		t.Fatalf("count/total = %d/%d, want 3/3", out.Count, out.Total)
	}
	for i, k := range want {
		if out.Keys[i] != k {
			t.Errorf("keys[%d] = %q, want %q", i, out.Keys[i], k)
		}
	}
}

func TestListImportedLimitAndPrefix(t *testing.T) {
	srv := NewServer(seededLedger(t, "C2/3.0", "C1/1.0", "C1/2.0"), nil, nil, "test")

	result := callTool(t, srv, "list_imported", map[string]any{"limit": 1, "prefix": "C1/"})
	var out listImportedOutput
	decodeOutput(t, result, &out)

	if out.Count != 1 || out.Total != 2 {
		t.Errorf("count/total = %d/%d, want 1/2", out.Count, out.Total)
	}
	if len(out.Keys) != 1 || out.Keys[0] != "C1/1.0" {
		t.Errorf("keys = %v", out.Keys)
	}
}

func TestForgetImported(t *testing.T) {
	open := seededLedger(t, "C1/1.0", "C1/2.0")
	srv := NewServer(open, nil, nil, "test")

	result := callTool(t, srv, "forget_imported", map[string]any{"key": "C1/1.0"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	l, err := open()
	if err != nil {
		t.Fatalf("reopening ledger: %v", err)
	}
	defer l.Close()
	if l.Contains("C1/1.0") {
		t.Error("forgotten key is still in the ledger")
	}
	if !l.Contains("C1/2.0") {
		t.Error("unrelated key was dropped")
	}
}

func TestForgetImportedUnknownKey(t *testing.T) {
	srv := NewServer(seededLedger(t), nil, nil, "test")

	result := callTool(t, srv, "forget_imported", map[string]any{"key": "C9/9.0"})
	if !result.IsError {
		t.Fatal("expected error result for a key not in the ledger")
	}
}

func TestLedgerOpenFailure(t *testing.T) {
	open := func() (core.DedupLedger, error) { return nil, errors.New("ledger is locked") }
	srv := NewServer(open, nil, nil, "test")

	result := callTool(t, srv, "list_imported", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error result when the ledger cannot be opened")
	}
	if text := extractText(result); text == "" {
		t.Fatal("expected error message in result")
	}
}

func TestLedgerReleasedBetweenCalls(t *testing.T) {
	open := seededLedger(t, "C1/1.0")
	srv := NewServer(open, nil, nil, "test")

	_ = callTool(t, srv, "check_imported", map[string]any{"key": "C1/1.0"})

	// A run taking the lock after a tool call must succeed.
	l, err := open()
	if err != nil {
		t.Fatalf("ledger still locked after tool call: %v", err)
	}
	_ = l.Close()
}

func TestGetImportMetrics(t *testing.T) {
	last := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc := &fakeMetricsCalculator{
		metrics: &observability.Metrics{
			Runs:          4,
			TasksImported: 9,
			Failures:      1,
			ItemsByKind:   map[string]int{"message": 7, "file": 2},
			EventCount:    30,
			LastRunAt:     &last,
		},
	}
	srv := NewServer(seededLedger(t), mc, nil, "test")
	srv.now = func() time.Time { return last }

	result := callTool(t, srv, "get_import_metrics", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var m metricsOutput
	decodeOutput(t, result, &m)

	if m.TasksImported != 9 || m.Runs != 4 {
		t.Errorf("metrics = %+v", m)
	}
	if m.ItemsByKind["message"] != 7 {
		t.Errorf("items_by_kind = %v", m.ItemsByKind)
	}
	if m.LastRunAt != "2024-03-01T12:00:00Z" {
		t.Errorf("last_run_at = %q", m.LastRunAt)
	}
	if want := last.AddDate(0, 0, -7); !mc.since.Equal(want) {
		t.Errorf("default window started at %v, want %v", mc.since, want)
	}
}

func TestGetImportMetricsBadSince(t *testing.T) {
	mc := &fakeMetricsCalculator{metrics: &observability.Metrics{}}
	srv := NewServer(seededLedger(t), mc, nil, "test")

	result := callTool(t, srv, "get_import_metrics", map[string]any{"since": "7x"})
	if !result.IsError {
		t.Fatal("expected error result for an invalid window")
	}
}

func TestGetImportMetricsDisabled(t *testing.T) {
	srv := NewServer(seededLedger(t), nil, nil, "test")

	result := callTool(t, srv, "get_import_metrics", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when metrics calculator is nil")
	}
}

func TestGetAlerts(t *testing.T) {
	now := time.Now().UTC()
	ae := &fakeAlertEngine{
		alerts: []observability.Alert{
			{
				ID:          "last-run-errors",
				Condition:   "last_run_errors",
				Severity:    observability.SeverityHigh,
				Message:     "the last run created no tasks and hit 2 errors",
				TriggeredAt: now,
			},
		},
	}
	srv := NewServer(seededLedger(t), nil, ae, "test")

	result := callTool(t, srv, "get_alerts", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out getAlertsOutput
	decodeOutput(t, result, &out)

	if out.Count != 1 {
		t.Errorf("expected 1 alert, got %d", out.Count)
	}
	if len(out.Alerts) > 0 && out.Alerts[0].Severity != "high" {
		t.Errorf("expected high severity, got %s", out.Alerts[0].Severity)
	}
}

func TestGetAlertsDisabled(t *testing.T) {
	srv := NewServer(seededLedger(t), nil, nil, "test")

	result := callTool(t, srv, "get_alerts", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when alert engine is nil")
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
