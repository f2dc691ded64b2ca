// Package metrics provides Prometheus metrics for spectrum libraries
package metrics

import (
	"time"

	"github.com/franz/speclib/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the library operation metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SpectraWritten    prometheus.Counter
	SpectraRead       prometheus.Counter
	SearchResults     prometheus.Histogram
}

// New creates the metrics and registers them with reg. A nil reg uses
// a private registry, which keeps tests and multiple libraries apart.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speclib_operations_total",
				Help: "Total number of library operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speclib_operation_duration_seconds",
				Help:    "Duration of library operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		SpectraWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "speclib_spectra_written_total",
				Help: "Total number of spectrum files written",
			},
		),
		SpectraRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "speclib_spectra_read_total",
				Help: "Total number of spectrum files loaded",
			},
		),
		SearchResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "speclib_search_results",
				Help:    "Number of records returned per search",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
	}
}

// Observe records one finished operation
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, Status(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// AddWritten counts n spectrum files written
func (m *Metrics) AddWritten(n int) {
	if m == nil {
		return
	}
	m.SpectraWritten.Add(float64(n))
}

// AddRead counts n spectrum files loaded
func (m *Metrics) AddRead(n int) {
	if m == nil {
		return
	}
	m.SpectraRead.Add(float64(n))
}

// ObserveSearch records the size of a search result
func (m *Metrics) ObserveSearch(results int) {
	if m == nil {
		return
	}
	m.SearchResults.Observe(float64(results))
}

// Status maps err onto a low-cardinality label value
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	if code := util.CodeOf(err); code != "" {
		return code
	}
	return "error"
}

// WriteTextfile dumps every metric gathered by g in the text exposition
// format, for node_exporter's textfile collector
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
