package core

// Event types emitted by an import run.
const (
	EventRunStarted   = "run.started"
	EventItemImported = "item.imported"
	EventItemSkipped  = "item.skipped"
	EventItemFailed   = "item.failed"
	EventItemRemoved  = "item.removed"
	EventRunCompleted = "run.completed"
)

// EventLogger records run events. observability.Recorder implements it on
// top of the JSONL event log; core never imports observability.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
