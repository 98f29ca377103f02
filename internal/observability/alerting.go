package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	StaleDays          int `yaml:"stale_threshold_days" json:"stale_threshold_days"`
	RepeatedFailures   int `yaml:"repeated_failures" json:"repeated_failures"`
	MaxPendingRemovals int `yaml:"max_pending_removals" json:"max_pending_removals"`
}

// DefaultAlertThresholds returns the default alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleDays:          7,
		RepeatedFailures:   3,
		MaxPendingRemovals: 20,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	pending    func() (int, error)
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. pending reports the number of
// queued saved-item removals and may be nil.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds, pending func() (int, error)) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		pending:    pending,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks every alert condition and returns the triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	var alerts []Alert

	runs, err := ae.eventLog.Read(EventFilter{Type: EventRunCompleted})
	if err != nil {
		return nil, fmt.Errorf("checking last run: %w", err)
	}
	alerts = append(alerts, ae.checkLastRun(runs, now)...)
	alerts = append(alerts, ae.checkStaleImport(runs, now)...)

	failureAlerts, err := ae.checkRepeatedFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking repeated failures: %w", err)
	}
	alerts = append(alerts, failureAlerts...)

	backlogAlerts, err := ae.checkPendingRemovals(now)
	if err != nil {
		return nil, fmt.Errorf("checking pending removals: %w", err)
	}
	alerts = append(alerts, backlogAlerts...)

	return alerts, nil
}

// checkLastRun alerts when the most recent run recorded errors. A run that
// created nothing and only failed is high severity.
func (ae *alertEngine) checkLastRun(runs []Event, now time.Time) []Alert {
	if len(runs) == 0 {
		return nil
	}
	last := runs[len(runs)-1]
	errs := intField(last.Data, "errors")
	if errs == 0 {
		return nil
	}
	severity := SeverityMedium
	if intField(last.Data, "tasks_created") == 0 {
		severity = SeverityHigh
	}
	return []Alert{{
		ID:          "last-run-errors",
		Condition:   "last_run_errors",
		Severity:    severity,
		Message:     fmt.Sprintf("last import run (%s) finished with %d errors", last.Time.Format("2006-01-02 15:04"), errs),
		TriggeredAt: now,
	}}
}

// checkStaleImport alerts when no non-dry run completed within the window.
func (ae *alertEngine) checkStaleImport(runs []Event, now time.Time) []Alert {
	if ae.thresholds.StaleDays <= 0 {
		return nil
	}
	var lastReal time.Time
	for _, run := range runs {
		if !boolField(run.Data, "dry_run") && run.Time.After(lastReal) {
			lastReal = run.Time
		}
	}
	if lastReal.IsZero() {
		return nil
	}
	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	if now.Sub(lastReal) <= threshold {
		return nil
	}
	return []Alert{{
		ID:          "import-stale",
		Condition:   "import_stale",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("no import has run for more than %d days", ae.thresholds.StaleDays),
		TriggeredAt: now,
	}}
}

// checkRepeatedFailures alerts on items that failed in several runs and
// were never imported since.
func (ae *alertEngine) checkRepeatedFailures(now time.Time) ([]Alert, error) {
	if ae.thresholds.RepeatedFailures <= 0 {
		return nil, nil
	}
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	failures := make(map[string]int)
	titles := make(map[string]string)
	for _, event := range events {
		key, _ := event.Data["key"].(string)
		if key == "" {
			continue
		}
		switch event.Type {
		case EventItemFailed:
			failures[key]++
			if title, ok := event.Data["title"].(string); ok {
				titles[key] = title
			}
		case EventItemImported:
			if !boolField(event.Data, "dry_run") {
				delete(failures, key)
			}
		}
	}

	keys := make([]string, 0, len(failures))
	for key, n := range failures {
		if n >= ae.thresholds.RepeatedFailures {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	alerts := make([]Alert, 0, len(keys))
	for _, key := range keys {
		alerts = append(alerts, Alert{
			ID:          "failing-" + key,
			Condition:   "item_repeatedly_failing",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%q failed to import %d times", titles[key], failures[key]),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

// checkPendingRemovals alerts when the removal retry queue keeps growing.
func (ae *alertEngine) checkPendingRemovals(now time.Time) ([]Alert, error) {
	if ae.pending == nil {
		return nil, nil
	}
	n, err := ae.pending()
	if err != nil {
		return nil, err
	}
	if n <= ae.thresholds.MaxPendingRemovals {
		return nil, nil
	}
	return []Alert{{
		ID:          "pending-removals",
		Condition:   "removal_backlog_too_large",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d saved items are waiting to be removed, exceeding the maximum of %d", n, ae.thresholds.MaxPendingRemovals),
		TriggeredAt: now,
	}}, nil
}
