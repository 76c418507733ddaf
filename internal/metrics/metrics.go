// Package metrics holds the pipeline's Prometheus collectors. A run is a
// batch job, so the registry is usually exported as a node-exporter
// textfile at the end; Handler serves it while a long fetch is running.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg               *prometheus.Registry
	Fetched           prometheus.Counter
	Rejected          *prometheus.CounterVec
	Duplicates        prometheus.Counter
	ItemsDropped      prometheus.Counter
	FactsBuilt        prometheus.Counter
	PartitionsWritten *prometheus.CounterVec
	RowsWritten       *prometheus.CounterVec
	Quarantined       prometheus.Counter
	RunDurationSec    prometheus.Gauge
	LastSuccessUnix   prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	fetched := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlake_records_fetched_total"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderlake_records_rejected_total"}, []string{"reason"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlake_duplicates_removed_total"})
	itemsDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlake_items_dropped_total"})
	facts := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlake_facts_built_total"})
	partitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderlake_partitions_written_total"}, []string{"table", "mode"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderlake_rows_written_total"}, []string{"table"})
	quarantined := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlake_quarantined_total"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderlake_run_duration_seconds"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderlake_last_success_timestamp_seconds"})

	r.MustRegister(fetched, rejected, duplicates, itemsDropped, facts, partitions, rows, quarantined, duration, lastSuccess)
	return &Registry{
		reg:               r,
		Fetched:           fetched,
		Rejected:          rejected,
		Duplicates:        duplicates,
		ItemsDropped:      itemsDropped,
		FactsBuilt:        facts,
		PartitionsWritten: partitions,
		RowsWritten:       rows,
		Quarantined:       quarantined,
		RunDurationSec:    duration,
		LastSuccessUnix:   lastSuccess,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// WriteTextfile writes the registry in text exposition format. The file is
// replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
