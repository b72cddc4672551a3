// Package metrics wires the module's counters and histograms to
// Prometheus. All methods are safe to call on a nil *Metrics (they are
// no-ops), so callers never need to check whether metrics are enabled.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	SessionsActive   prometheus.Gauge
	BroadcastTotal   *prometheus.CounterVec
	BroadcastTargets prometheus.Histogram
	AckTimeouts      prometheus.Counter
}

// New registers a fresh set of collectors on reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaysix_sessions_active",
			Help: "Number of open engine.io sessions.",
		}),
		BroadcastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaysix_broadcast_total",
			Help: "Number of broadcasts executed, by namespace.",
		}, []string{"namespace"}),
		BroadcastTargets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaysix_broadcast_targets",
			Help:    "Number of sockets targeted per broadcast.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaysix_ack_timeouts_total",
			Help: "Number of acks that fired their timeout instead of being answered.",
		}),
	}
	reg.MustRegister(m.SessionsActive, m.BroadcastTotal, m.BroadcastTargets, m.AckTimeouts)
	return m
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) SessionOpened() { m.sessionOpened() }
func (m *Metrics) SessionClosed() { m.sessionClosed() }

func (m *Metrics) Broadcast(namespace string, targets int) {
	if m == nil {
		return
	}
	m.BroadcastTotal.WithLabelValues(namespace).Inc()
	m.BroadcastTargets.Observe(float64(targets))
}

func (m *Metrics) AckTimeout() {
	if m == nil {
		return
	}
	m.AckTimeouts.Inc()
}
