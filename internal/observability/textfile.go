package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// TextfileExporter writes the statistics of the last run as Prometheus
// gauges in the node_exporter textfile format. It is a run reporter.
type TextfileExporter struct {
	path     string
	registry *prometheus.Registry
	gauges   *prometheus.GaugeVec
	lastRun  prometheus.Gauge
	dryRun   prometheus.Gauge
	now      func() time.Time
}

// NewTextfileExporter creates an exporter writing to path.
func NewTextfileExporter(path string) *TextfileExporter {
	e := &TextfileExporter{
		path:     path,
		registry: prometheus.NewRegistry(),
		gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ssync",
				Subsystem: "last_run",
				Name:      "items",
				Help:      "Counters of the last import run by outcome",
			},
			[]string{"outcome"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ssync",
			Subsystem: "last_run",
			Name:      "timestamp_seconds",
			Help:      "Unix time the last import run finished",
		}),
		dryRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ssync",
			Subsystem: "last_run",
			Name:      "dry_run",
			Help:      "1 when the last import run was a dry run",
		}),
		now: time.Now,
	}
	e.registry.MustRegister(e.gauges, e.lastRun, e.dryRun)
	return e
}

// Publish sets the gauges from stats and rewrites the textfile.
func (e *TextfileExporter) Publish(stats models.RunStatistics) error {
	e.gauges.WithLabelValues("seen").Set(float64(stats.ItemsSeen))
	e.gauges.WithLabelValues("created").Set(float64(stats.TasksCreated))
	e.gauges.WithLabelValues("skipped").Set(float64(stats.SkippedDuplicates))
	e.gauges.WithLabelValues("removed").Set(float64(stats.ItemsRemoved))
	e.gauges.WithLabelValues("errors").Set(float64(stats.Errors))
	e.gauges.WithLabelValues("remote_calls").Set(float64(stats.RemoteCalls))
	e.lastRun.Set(float64(e.now().Unix()))
	if stats.DryRun {
		e.dryRun.Set(1)
	} else {
		e.dryRun.Set(0)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
