package models

// RunStatistics aggregates the counters of a single import run.
type RunStatistics struct {
	RunID             string `json:"run_id" yaml:"run_id"`
	ItemsSeen         int    `json:"items_seen" yaml:"items_seen"`
	TasksCreated      int    `json:"tasks_created" yaml:"tasks_created"`
	RemoteCalls       int    `json:"remote_calls" yaml:"remote_calls"`
	Errors            int    `json:"errors" yaml:"errors"`
	SkippedDuplicates int    `json:"skipped_duplicates" yaml:"skipped_duplicates"`
	ItemsRemoved      int    `json:"items_removed" yaml:"items_removed"`
	DryRun            bool   `json:"dry_run" yaml:"dry_run"`
}

// AsMap flattens the counters for event payloads.
func (s RunStatistics) AsMap() map[string]any {
	return map[string]any{
		"run_id":             s.RunID,
		"items_seen":         s.ItemsSeen,
		"tasks_created":      s.TasksCreated,
		"remote_calls":       s.RemoteCalls,
		"errors":             s.Errors,
		"skipped_duplicates": s.SkippedDuplicates,
		"items_removed":      s.ItemsRemoved,
		"dry_run":            s.DryRun,
	}
}
