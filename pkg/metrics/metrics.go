// Package metrics holds the Prometheus collectors of the pipeline and server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eiademand"

// Result is the outcome label of an aggregation.
type Result string

const (
	ResultOK             Result = "ok"
	ResultAlignmentError Result = "alignment_error"
	ResultLoadError      Result = "load_error"
	ResultStoreError     Result = "store_error"
	ResultEmpty          Result = "empty"
)

// Metrics is a set of collectors registered on their own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	aggregations    *prometheus.CounterVec
	skippedEntities *prometheus.CounterVec
	rowsWritten     prometheus.Counter
	imputedCells    *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// New returns Metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)
	return &Metrics{
		registry: reg,
		aggregations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Aggregations attempted by target and result",
		}, []string{"target", "result"}),
		skippedEntities: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_entities_total",
			Help:      "Entities skipped because they are not usable, by target",
		}, []string{"target"}),
		rowsWritten: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written in aggregated tables",
		}),
		imputedCells: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imputed_cells_total",
			Help:      "Cells replaced by the column mean, by entity",
		}, []string{"entity"}),
		fetchFailures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed source fetches by entity",
		}, []string{"entity"}),
		lastRun: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pipeline run finished",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Aggregated(target string, r Result) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(target, string(r)).Inc()
}

func (m *Metrics) EntitySkipped(target string) {
	if m == nil {
		return
	}
	m.skippedEntities.WithLabelValues(target).Inc()
}

func (m *Metrics) RowsWritten(n int) {
	if m == nil {
		return
	}
	m.rowsWritten.Add(float64(n))
}

func (m *Metrics) CellsImputed(entity string, n int) {
	if m == nil {
		return
	}
	m.imputedCells.WithLabelValues(entity).Add(float64(n))
}

func (m *Metrics) FetchFailed(entity string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(entity).Inc()
}

// RunFinished sets the last run gauge to now.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.lastRun.SetToCurrentTime()
}
