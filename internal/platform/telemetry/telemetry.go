// Package telemetry records export-run metrics on a private Prometheus
// registry. A one-shot run has no scrape window, so the registry is written
// to a node_exporter textfile when the run ends.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intake_export"

// ExportMetrics contains the collectors for one export run.
type ExportMetrics struct {
	registry *prometheus.Registry

	records      prometheus.Counter
	emptyRecords prometheus.Counter
	tests        *prometheus.CounterVec
	duration     prometheus.Gauge
	lastSuccess  prometheus.Gauge
	runInfo      *prometheus.GaugeVec
}

// NewExportMetrics creates the collectors on a fresh registry.
func NewExportMetrics() *ExportMetrics {
	m := &ExportMetrics{
		registry: prometheus.NewRegistry(),

		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Form records written to the report",
		}),

		emptyRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_records_total",
			Help:      "Form records without any extracted document",
		}),

		tests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tests_total",
				Help:      "Requested tests written to the report, by where they were found",
			},
			[]string{"origin"},
		),

		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the last export run",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last export run that completed",
		}),

		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_info",
				Help:      "Identity of the export run that wrote these metrics",
			},
			[]string{"run_id", "source"},
		),
	}

	m.registry.MustRegister(m.records, m.emptyRecords, m.tests, m.duration, m.lastSuccess, m.runInfo)
	return m
}

// Registry exposes the registry for tests and custom exposition.
func (m *ExportMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRecord counts one written record.
func (m *ExportMetrics) ObserveRecord(fieldTests, tableTests int, empty bool) {
	m.records.Inc()
	if empty {
		m.emptyRecords.Inc()
	}
	m.tests.WithLabelValues("field").Add(float64(fieldTests))
	m.tests.WithLabelValues("table").Add(float64(tableTests))
}

// SetRun labels the metrics with the run identity.
func (m *ExportMetrics) SetRun(runID, source string) {
	m.runInfo.WithLabelValues(runID, source).Set(1)
}

// ObserveRun records the outcome of the run. The success timestamp only moves
// when the run completed.
func (m *ExportMetrics) ObserveRun(d time.Duration, finished time.Time, ok bool) {
	m.duration.Set(d.Seconds())
	if ok {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the registry in the Prometheus text format. The file
// is replaced atomically.
func (m *ExportMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
