package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the realtime collectors.
type Metrics struct {
	ActiveSockets      prometheus.Gauge
	RegistryKeys       prometheus.Gauge
	Deliveries         prometheus.Counter
	DeliveryFailures   prometheus.Counter
	EnvelopesReceived  prometheus.Counter
	EnvelopesMalformed prometheus.Counter
	EnvelopesPublished prometheus.Counter
	BusReconnects      prometheus.Counter
	HandshakesIssued   prometheus.Counter
	HandshakesConsumed prometheus.Counter
	HandshakesRejected prometheus.Counter
	SocketsRateLimited prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg (when non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat", Subsystem: "realtime", Name: "active_sockets",
			Help: "Live sockets held by this process.",
		}),
		RegistryKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat", Subsystem: "realtime", Name: "registry_keys",
			Help: "Recipient keys with at least one local socket.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "realtime", Name: "deliveries_total",
			Help: "Payloads handed to local sockets.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "realtime", Name: "delivery_failures_total",
			Help: "Payloads a local socket could not accept; the socket was dropped.",
		}),
		EnvelopesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "fanout", Name: "envelopes_received_total",
			Help: "Envelopes read from the fan-out bus.",
		}),
		EnvelopesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "fanout", Name: "envelopes_malformed_total",
			Help: "Envelopes skipped because they failed to decode.",
		}),
		EnvelopesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "fanout", Name: "envelopes_published_total",
			Help: "Envelopes published to the fan-out bus.",
		}),
		BusReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "fanout", Name: "resubscribes_total",
			Help: "Times the listener re-subscribed after a bus error.",
		}),
		HandshakesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "handshake", Name: "issued_total",
			Help: "Socket session ids issued.",
		}),
		HandshakesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "handshake", Name: "consumed_total",
			Help: "Socket session ids exchanged for a connection.",
		}),
		HandshakesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "handshake", Name: "rejected_total",
			Help: "Socket session ids that were absent, unknown, expired or replayed.",
		}),
		SocketsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "realtime", Name: "sockets_rate_limited_total",
			Help: "Sockets closed for exceeding the inbound frame rate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveSockets, m.RegistryKeys, m.Deliveries, m.DeliveryFailures,
			m.EnvelopesReceived, m.EnvelopesMalformed, m.EnvelopesPublished, m.BusReconnects,
			m.HandshakesIssued, m.HandshakesConsumed, m.HandshakesRejected, m.SocketsRateLimited,
		)
	}
	return m
}

// orNop returns m, or an unregistered set of collectors when m is nil.
func (m *Metrics) orNop() *Metrics {
	if m == nil {
		return NewMetrics(nil)
	}
	return m
}
