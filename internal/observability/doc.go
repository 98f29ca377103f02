// Package observability records what import runs did and reports on it. Run
// events are appended to a JSON Lines log; metrics and alerts are derived
// from that log on demand. Run summaries can also be exported as a
// Prometheus textfile or posted to a Slack webhook.
package observability
