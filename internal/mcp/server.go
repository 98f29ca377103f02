// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the import ledger and run metrics as tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/internal/observability"
)

// LedgerOpener returns a loaded ledger. The server closes it after each
// tool call so an import run can take the lock in between.
type LedgerOpener func() (core.DedupLedger, error)

// Server exposes ssync state as MCP tools.
type Server struct {
	server      *gomcp.Server
	openLedger  LedgerOpener
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates an MCP server. metricsCalc and alertEngine may be nil.
func NewServer(openLedger LedgerOpener, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		openLedger:  openLedger,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         func() time.Time { return time.Now().UTC() },
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "ssync", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type checkImportedInput struct {
	Key string `json:"key" jsonschema:"required,the dedup key of a saved item (e.g. C0123/1700000000.000100 or a file permalink)"`
}

type checkImportedOutput struct {
	Key      string `json:"key"`
	Imported bool   `json:"imported"`
}

type listImportedInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of keys to return (0 for all)"`
	Prefix string `json:"prefix,omitempty" jsonschema:"only return keys starting with this prefix (e.g. a channel id)"`
}

type listImportedOutput struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
	Total int      `json:"total"`
}

type forgetImportedInput struct {
	Key string `json:"key" jsonschema:"required,the dedup key to remove so the item is imported again on the next run"`
}

type forgetImportedOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Runs              int            `json:"runs"`
	DryRuns           int            `json:"dry_runs"`
	TasksImported     int            `json:"tasks_imported"`
	Failures          int            `json:"failures"`
	SkippedDuplicates int            `json:"skipped_duplicates"`
	ItemsRemoved      int            `json:"items_removed"`
	RemoteCalls       int            `json:"remote_calls"`
	ItemsByKind       map[string]int `json:"items_by_kind"`
	EventCount        int            `json:"event_count"`
	LastRunAt         string         `json:"last_run_at,omitempty"`
	LastRunErrors     int            `json:"last_run_errors"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_imported",
		Description: "Check whether a saved Slack item has already been turned into an OmniFocus task.",
	}, s.handleCheckImported)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_imported",
		Description: "List the dedup keys of saved items already imported, in sorted order.",
	}, s.handleListImported)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "forget_imported",
		Description: "Remove a key from the import ledger so the item is imported again on the next run.",
	}, s.handleForgetImported)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_import_metrics",
		Description: "Get aggregated import metrics from the event log: runs, tasks imported, failures and items by kind.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (failed last run, stale imports, repeatedly failing items, removal backlog).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleCheckImported(_ context.Context, _ *gomcp.CallToolRequest, input checkImportedInput) (*gomcp.CallToolResult, checkImportedOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), checkImportedOutput{}, nil
	}

	var imported bool
	err := s.withLedger(func(l core.DedupLedger) error {
		imported = l.Contains(input.Key)
		return nil
	})
	if err != nil {
		return errorResult(fmt.Sprintf("opening ledger: %s", err)), checkImportedOutput{}, nil
	}
	return nil, checkImportedOutput{Key: input.Key, Imported: imported}, nil
}

func (s *Server) handleListImported(_ context.Context, _ *gomcp.CallToolRequest, input listImportedInput) (*gomcp.CallToolResult, listImportedOutput, error) {
	if input.Limit < 0 {
		return errorResult("limit must not be negative"), listImportedOutput{}, nil
	}

	var keys []string
	err := s.withLedger(func(l core.DedupLedger) error {
		keys = l.Keys()
		return nil
	})
	if err != nil {
		return errorResult(fmt.Sprintf("opening ledger: %s", err)), listImportedOutput{}, nil
	}

	out := listImportedOutput{Keys: make([]string, 0)}
	for _, k := range keys {
		if input.Prefix != "" && !strings.HasPrefix(k, input.Prefix) {
			continue
		}
		out.Total++
		if input.Limit == 0 || len(out.Keys) < input.Limit {
			out.Keys = append(out.Keys, k)
		}
	}
	out.Count = len(out.Keys)
	return nil, out, nil
}

func (s *Server) handleForgetImported(_ context.Context, _ *gomcp.CallToolRequest, input forgetImportedInput) (*gomcp.CallToolResult, forgetImportedOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), forgetImportedOutput{}, nil
	}

	err := s.withLedger(func(l core.DedupLedger) error {
		return l.Remove(input.Key)
	})
	if err != nil {
		return errorResult(fmt.Sprintf("forgetting %s: %s", input.Key, err)), forgetImportedOutput{}, nil
	}
	return nil, forgetImportedOutput{Message: fmt.Sprintf("%s will be imported again on the next run", input.Key)}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	window := input.Since
	if window == "" {
		window = "7d"
	}
	since, err := observability.ParseSince(window, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since: %s", err)), emptyMetricsOutput(), nil
	}

	m, err := s.metricsCalc.Calculate(since)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Runs:              m.Runs,
		DryRuns:           m.DryRuns,
		TasksImported:     m.TasksImported,
		Failures:          m.Failures,
		SkippedDuplicates: m.SkippedDuplicates,
		ItemsRemoved:      m.ItemsRemoved,
		RemoteCalls:       m.RemoteCalls,
		ItemsByKind:       m.ItemsByKind,
		EventCount:        m.EventCount,
		LastRunErrors:     m.LastRunErrors,
	}
	if out.ItemsByKind == nil {
		out.ItemsByKind = make(map[string]int)
	}
	if m.LastRunAt != nil {
		out.LastRunAt = m.LastRunAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

// withLedger opens the ledger, runs fn and releases the lock.
func (s *Server) withLedger(fn func(core.DedupLedger) error) error {
	if s.openLedger == nil {
		return errors.New("ledger not configured")
	}
	l, err := s.openLedger()
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	return fn(l)
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{ItemsByKind: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
