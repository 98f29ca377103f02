package observability

import (
	"fmt"
	"strconv"
	"time"
)

// Metrics holds import metrics derived from the event log.
type Metrics struct {
	Runs              int            `json:"runs"`
	DryRuns           int            `json:"dry_runs"`
	TasksImported     int            `json:"tasks_imported"`
	Failures          int            `json:"failures"`
	SkippedDuplicates int            `json:"skipped_duplicates"`
	ItemsRemoved      int            `json:"items_removed"`
	RemoteCalls       int            `json:"remote_calls"`
	ItemsByKind       map[string]int `json:"items_by_kind"`
	EventCount        int            `json:"event_count"`
	LastRunAt         *time.Time     `json:"last_run_at,omitempty"`
	LastRunErrors     int            `json:"last_run_errors"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates the events recorded at or after since. Imports made
// during dry runs are not counted as imported tasks.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{ItemsByKind: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case EventRunCompleted:
			m.Runs++
			if boolField(event.Data, "dry_run") {
				m.DryRuns++
			}
			m.RemoteCalls += intField(event.Data, "remote_calls")
			m.ItemsRemoved += intField(event.Data, "items_removed")
			m.LastRunAt = &t
			m.LastRunErrors = intField(event.Data, "errors")
		case EventItemImported:
			if boolField(event.Data, "dry_run") {
				continue
			}
			m.TasksImported++
			if kind, ok := event.Data["kind"].(string); ok {
				m.ItemsByKind[kind]++
			}
		case EventItemFailed:
			m.Failures++
		case EventItemSkipped:
			m.SkippedDuplicates++
		}
	}

	return m, nil
}

// ParseSince parses a look-back window such as "7d", "12h" or "30m" into the
// time it starts at. An empty window means the whole log.
func ParseSince(window string, now time.Time) (time.Time, error) {
	if window == "" {
		return time.Time{}, nil
	}
	if n := len(window); n > 1 && window[n-1] == 'd' {
		days, err := strconv.Atoi(window[:n-1])
		if err != nil || days < 0 {
			return time.Time{}, fmt.Errorf("invalid window %q", window)
		}
		return now.AddDate(0, 0, -days), nil
	}
	d, err := time.ParseDuration(window)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid window %q", window)
	}
	return now.Add(-d), nil
}
