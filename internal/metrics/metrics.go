// Package metrics holds the domain Prometheus collectors of the verification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	documents        *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	analysis         *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_documents_total",
				Help: "Documents persisted, by verdict.",
			},
			[]string{"status"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_rejections_total",
				Help: "Uploads rejected at intake, by reason.",
			},
			[]string{"reason"},
		),
		analysis: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_analysis_total",
				Help: "Calls to the analysis collaborator, by result.",
			},
			[]string{"result"},
		),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_analysis_duration_seconds",
			Help:    "Latency of analysis collaborator calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	for _, c := range []prometheus.Collector{m.documents, m.rejections, m.analysis, m.analysisDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveDocument counts a persisted document.
func (m *Metrics) ObserveDocument(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

// ObserveRejection counts an intake rejection.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveAnalysis records one collaborator call. result is "ok" or a failure reason.
func (m *Metrics) ObserveAnalysis(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysis.WithLabelValues(result).Inc()
	m.analysisDuration.Observe(d.Seconds())
}
