package observer

import (
	"github.com/prometheus/client_golang/prometheus"

	"driverkit/pkg/property"
)

const metricsNamespace = "driverkit"

// Metrics counts broadcasts per device and the updates that ended in
// Alert. It keeps its own registry so several instances can coexist.
type Metrics struct {
	registry   *prometheus.Registry
	broadcasts *prometheus.CounterVec
	alerts     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "observer",
				Name:      "broadcasts_total",
				Help:      "Broadcasts sent to observers.",
			},
			[]string{"device", "type"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "observer",
				Name:      "alerts_total",
				Help:      "Property updates broadcast in the Alert state.",
			},
			[]string{"device", "property"},
		),
	}
	m.registry.MustRegister(m.broadcasts, m.alerts)
	return m
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Define(s property.Snapshot) {
	m.broadcasts.WithLabelValues(s.Device, "define").Inc()
}

func (m *Metrics) Update(s property.Snapshot) {
	m.broadcasts.WithLabelValues(s.Device, "update").Inc()
	if s.State == property.StateAlert {
		m.alerts.WithLabelValues(s.Device, s.Name).Inc()
	}
}

func (m *Metrics) Delete(device, name string) {
	m.broadcasts.WithLabelValues(device, "delete").Inc()
}

func (m *Metrics) Message(device, msg string) {
	m.broadcasts.WithLabelValues(device, "message").Inc()
}
