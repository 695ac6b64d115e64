package connection

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartcontractkit/chainlink-connections/chain"
)

const metricsNamespace = "chainconn"

// Outcome label values of the attempts counter.
const (
	OutcomeConnected = "connected"
	OutcomeFailed    = "failed"
	OutcomeStale     = "stale"
)

// Metrics holds the prometheus collectors updated by the manager. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	connected prometheus.Gauge
	switches  prometheus.Counter
	teardowns prometheus.Counter
}

// NewMetrics creates the manager collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by chain and outcome.",
		}, []string{"chain", "outcome"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_chains",
			Help:      "Number of chains with a live cached handle.",
		}),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "active_chain_switches_total",
			Help:      "Number of times the active chain changed.",
		}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "teardowns_total",
			Help:      "Number of teardowns.",
		}),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.connected, m.switches, m.teardowns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) attempt(id chain.ChainID, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(id.String(), outcome).Inc()
	if outcome == OutcomeConnected {
		m.connected.Inc()
	}
}

func (m *Metrics) switched() {
	if m == nil {
		return
	}
	m.switches.Inc()
}

func (m *Metrics) tornDown() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
	m.connected.Set(0)
}
