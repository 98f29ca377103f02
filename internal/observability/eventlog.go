package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/saved-sync/internal/core"
)

// EventLogFileName is the event log created in the state directory.
const EventLogFileName = "events.jsonl"

// Event types written by import runs.
const (
	EventRunStarted   = core.EventRunStarted
	EventRunCompleted = core.EventRunCompleted
	EventItemImported = core.EventItemImported
	EventItemSkipped  = core.EventItemSkipped
	EventItemFailed   = core.EventItemFailed
	EventItemRemoved  = core.EventItemRemoved
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event represents a single recorded step of an import run.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
	RunID string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

// Write appends a JSON-encoded event followed by a newline.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log and returns the events matching filter, oldest first.
// Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.RunID != "" && event.RunID != filter.RunID {
		return false
	}
	return true
}

// Recorder writes orchestrator events to an EventLog. It satisfies
// core.EventLogger and stamps every event with the run it belongs to.
type Recorder struct {
	log   EventLog
	runID string
	now   func() time.Time
}

// NewRecorder creates a Recorder writing to log.
func NewRecorder(log EventLog) *Recorder {
	return &Recorder{log: log, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent records one event. The run id is taken from a run.started
// payload and attached to every later event.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	if eventType == EventRunStarted {
		if id, ok := data["run_id"].(string); ok {
			r.runID = id
		}
	}
	return r.log.Write(Event{
		Time:    r.now(),
		Level:   levelFor(eventType, data),
		Type:    eventType,
		RunID:   r.runID,
		Message: messageFor(eventType, data),
		Data:    data,
	})
}

func levelFor(eventType string, data map[string]any) string {
	switch eventType {
	case EventItemFailed:
		return LevelError
	case EventRunCompleted:
		if intField(data, "errors") > 0 {
			return LevelWarn
		}
	}
	return LevelInfo
}

func messageFor(eventType string, data map[string]any) string {
	switch eventType {
	case EventItemImported:
		return fmt.Sprintf("imported %v", data["title"])
	case EventItemFailed:
		return fmt.Sprintf("failed to import %v", data["title"])
	case EventItemSkipped:
		return fmt.Sprintf("skipped %v", data["key"])
	case EventRunCompleted:
		return fmt.Sprintf("run completed: %d created, %d errors",
			intField(data, "tasks_created"), intField(data, "errors"))
	}
	return eventType
}

// intField reads a numeric payload field. Values decoded from JSON arrive
// as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// boolField reads a boolean payload field.
func boolField(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}
