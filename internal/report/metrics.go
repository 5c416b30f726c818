package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/groupmsg/internal/domain/delivery"
)

// Metrics holds the per-run counters exported for node_exporter's textfile collector.
type Metrics struct {
	registry   *prometheus.Registry
	contacts   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	duration   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupmsg_contacts_total",
			Help: "Contacts seen by extraction, by state.",
		}, []string{"state"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupmsg_deliveries_total",
			Help: "Terminal delivery outcomes.",
		}, []string{"outcome"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupmsg_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(m.contacts, m.deliveries, m.duration)
	return m
}

func (m *Metrics) Observe(rep delivery.RunReport) {
	m.contacts.WithLabelValues("found").Add(float64(rep.Found))
	m.contacts.WithLabelValues("valid").Add(float64(rep.Valid))
	m.contacts.WithLabelValues("rejected").Add(float64(rep.Rejected))
	for _, a := range rep.Attempts {
		m.deliveries.WithLabelValues(string(a.Outcome)).Inc()
	}
	m.duration.Set(rep.Duration().Seconds())
}

func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the metrics atomically in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
