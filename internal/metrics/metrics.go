// Package metrics provides the Prometheus collectors for uploads and the
// snapshot store.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Row stages.
const (
	StageReceived = "received"
	StageDropped  = "dropped"
	StageInserted = "inserted"
	StageFailed   = "failed"
)

// Metrics holds every collector of the service.
type Metrics struct {
	UploadsTotal        *prometheus.CounterVec // uploads by family and outcome
	RowsTotal           *prometheus.CounterVec // rows by family and stage
	PersistDuration     prometheus.Histogram
	PersistFailures     prometheus.Counter
	SnapshotBytes       prometheus.Gauge
	ReportsSentTotal    *prometheus.CounterVec // summary mails by outcome
	DashboardCacheTotal *prometheus.CounterVec // dashboard lookups by result (hit, miss)
	SecurityEventsTotal *prometheus.CounterVec // rate limit hits and suspicious requests

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on registry.
func NewWithRegistry(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alloctrack_uploads_total",
			Help: "Uploads processed by record family and outcome",
		}, []string{"family", "outcome"}),
		RowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alloctrack_rows_total",
			Help: "Uploaded rows by record family and pipeline stage",
		}, []string{"family", "stage"}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alloctrack_snapshot_persist_seconds",
			Help:    "Time taken to serialize and write the snapshot file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alloctrack_snapshot_persist_failures_total",
			Help: "Snapshot writes that failed and were rolled back",
		}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alloctrack_snapshot_bytes",
			Help: "Size of the last persisted snapshot image",
		}),
		ReportsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alloctrack_reports_sent_total",
			Help: "Summary report mails by outcome",
		}, []string{"outcome"}),
		DashboardCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alloctrack_dashboard_cache_total",
			Help: "Dashboard cache lookups by result",
		}, []string{"result"}),
		SecurityEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alloctrack_http_security_events_total",
			Help: "Rejected or flagged HTTP requests by event",
		}, []string{"event"}),
		registry: registry,
	}

	for _, c := range []prometheus.Collector{
		m.UploadsTotal, m.RowsTotal, m.PersistDuration, m.PersistFailures,
		m.SnapshotBytes, m.ReportsSentTotal, m.DashboardCacheTotal, m.SecurityEventsTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// ObservePersist implements storage.Observer.
func (m *Metrics) ObservePersist(d time.Duration, size int, err error) {
	if err != nil {
		m.PersistFailures.Inc()
		return
	}
	m.PersistDuration.Observe(d.Seconds())
	m.SnapshotBytes.Set(float64(size))
}

// RecordUpload counts one finished upload and its rows.
func (m *Metrics) RecordUpload(family, outcome string, received, dropped, inserted, failed int) {
	m.UploadsTotal.WithLabelValues(family, outcome).Inc()
	if outcome != OutcomeSuccess {
		return
	}
	m.RowsTotal.WithLabelValues(family, StageReceived).Add(float64(received))
	m.RowsTotal.WithLabelValues(family, StageDropped).Add(float64(dropped))
	m.RowsTotal.WithLabelValues(family, StageInserted).Add(float64(inserted))
	m.RowsTotal.WithLabelValues(family, StageFailed).Add(float64(failed))
}

// RecordReport counts one summary mail.
func (m *Metrics) RecordReport(success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	m.ReportsSentTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts one dashboard cache lookup.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DashboardCacheTotal.WithLabelValues(result).Inc()
}

// RecordSecurityEvent counts one rate limit hit or suspicious request.
func (m *Metrics) RecordSecurityEvent(event string) {
	m.SecurityEventsTotal.WithLabelValues(event).Inc()
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
