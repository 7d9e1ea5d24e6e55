// Package metrics exports helper run metrics in Prometheus text format.
//
// Helpers are short-lived processes that nothing can scrape, so each run
// writes its gauges into a node_exporter textfile collector directory.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the gauges for one helper run.
type Recorder struct {
	registry *prometheus.Registry
	helper   string

	lastRun  *prometheus.GaugeVec
	success  *prometheus.GaugeVec
	duration *prometheus.GaugeVec
	items    *prometheus.GaugeVec
}

// NewRecorder creates a recorder for the named helper ("security", "update").
func NewRecorder(helper string) *Recorder {
	labels := []string{"helper", "action"}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		helper:   helper,
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muxos_helper_last_run_timestamp_seconds",
			Help: "Unix time the helper action last ran.",
		}, labels),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muxos_helper_last_run_success",
			Help: "1 if the last run of the helper action succeeded, 0 otherwise.",
		}, labels),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muxos_helper_last_run_duration_seconds",
			Help: "Wall time of the last run of the helper action.",
		}, labels),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muxos_helper_last_run_items",
			Help: "Files copied or restored, or batch items, in the last run.",
		}, labels),
	}
	r.registry.MustRegister(r.lastRun, r.success, r.duration, r.items)
	return r
}

// Observe records the outcome of one action.
func (r *Recorder) Observe(action string, start time.Time, items int, err error) {
	ok := 0.0
	if err == nil {
		ok = 1
	}
	r.lastRun.WithLabelValues(r.helper, action).Set(float64(start.Unix()))
	r.success.WithLabelValues(r.helper, action).Set(ok)
	r.duration.WithLabelValues(r.helper, action).Set(time.Since(start).Seconds())
	r.items.WithLabelValues(r.helper, action).Set(float64(items))
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes muxos_<helper>_<action>.prom into dir.
func (r *Recorder) WriteTextfile(dir, action string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create textfile dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("muxos_%s_%s.prom", r.helper, action))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
