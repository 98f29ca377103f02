package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// Notifier posts run summaries and alerts to an external channel.
type Notifier interface {
	Notify(stats models.RunStatistics, alerts []Alert) error
}

// SlackNotifier posts to a Slack incoming webhook. Its Publish method makes
// it usable as a run reporter.
type SlackNotifier struct {
	webhookURL   string
	onlyOnErrors bool
	client       *http.Client
	// Alerts, when set, is evaluated after each run and its alerts are
	// appended to the summary.
	Alerts AlertEngine
}

// NewSlackNotifier creates a notifier for webhookURL. With onlyOnErrors set,
// runs that finished without errors are not posted.
func NewSlackNotifier(webhookURL string, onlyOnErrors bool) *SlackNotifier {
	return &SlackNotifier{
		webhookURL:   webhookURL,
		onlyOnErrors: onlyOnErrors,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Publish posts the summary of a finished run.
func (s *SlackNotifier) Publish(stats models.RunStatistics) error {
	var alerts []Alert
	if s.Alerts != nil {
		found, err := s.Alerts.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}
		alerts = found
	}
	return s.Notify(stats, alerts)
}

// Notify posts stats and alerts. It returns nil without a request when the
// notifier only reports errors and the run had none.
func (s *SlackNotifier) Notify(stats models.RunStatistics, alerts []Alert) error {
	if s.onlyOnErrors && stats.Errors == 0 && len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildRunMessage(stats, alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildRunMessage(stats models.RunStatistics, alerts []Alert) slackMessage {
	header := "Slack saved items imported"
	if stats.DryRun {
		header += " (dry run)"
	}
	summary := fmt.Sprintf("%d tasks created from %d saved items, %d duplicates skipped, %d errors",
		stats.TasksCreated, stats.ItemsSeen, stats.SkippedDuplicates, stats.Errors)

	fields := []string{
		fmt.Sprintf("*Tasks created:* %d", stats.TasksCreated),
		fmt.Sprintf("*Items seen:* %d", stats.ItemsSeen),
		fmt.Sprintf("*Duplicates skipped:* %d", stats.SkippedDuplicates),
		fmt.Sprintf("*Removed from Slack:* %d", stats.ItemsRemoved),
		fmt.Sprintf("*API calls:* %d", stats.RemoteCalls),
		fmt.Sprintf("*Errors:* %d", stats.Errors),
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.Join(fields, "\n")}},
	}
	if stats.RunID != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "_run " + stats.RunID + "_"},
		})
	}

	for _, alert := range alerts {
		blocks = append(blocks, slackBlock{Type: "divider"})
		text := fmt.Sprintf("%s *[%s]* %s",
			severityEmoji(alert.Severity),
			strings.ToUpper(string(alert.Severity)),
			alert.Message,
		)
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})
	}

	return slackMessage{Text: summary, Blocks: blocks}
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
