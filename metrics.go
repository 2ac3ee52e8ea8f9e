package ldfmock

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by a mocker.
const (
	outcomeMocked      = "mocked"
	outcomePassthrough = "passthrough"
	outcomeNotFound    = "not_found"
	outcomeError       = "error"
)

// Metrics counts what mockers do. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	listeningMockers prometheus.Gauge
}

// NewMetrics creates the mocker metrics and registers them on reg. A nil reg
// leaves them unregistered, which suits tests reading them directly.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldfmock_requests_total",
				Help: "Total number of requests served by mock servers, by outcome.",
			},
			[]string{"outcome"},
		),
		listeningMockers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ldfmock_listening_mockers",
				Help: "Number of mock servers currently accepting connections.",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requestsTotal, m.listeningMockers} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) mockerListening() {
	if m == nil {
		return
	}
	m.listeningMockers.Inc()
}

func (m *Metrics) mockerClosed() {
	if m == nil {
		return
	}
	m.listeningMockers.Dec()
}
