// Package metrics exposes Prometheus metrics for the relay on a private
// registry.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the "reason" label of the dropped-messages counter.
const (
	ReasonUnknownClient = "unknown_client"
	ReasonInvalidUTF8   = "invalid_utf8"
	ReasonRateLimited   = "rate_limited"
)

// Metrics holds the relay collectors. All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	clientsConnected prometheus.Gauge
	connections      prometheus.Counter
	disconnections   prometheus.Counter
	messagesReceived prometheus.Counter
	messagesRelayed  prometheus.Counter
	relayBytes       prometheus.Counter
	messagesDropped  *prometheus.CounterVec
	writeErrors      prometheus.Counter
	acceptErrors     prometheus.Counter

	queueLength atomic.Pointer[func() int]
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcprelay_clients_connected",
			Help: "Number of clients currently in the relay registry",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_connections_total",
			Help: "Total connect events processed by the hub",
		}),
		disconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_disconnections_total",
			Help: "Total clients removed from the registry",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_messages_received_total",
			Help: "Total messages accepted for relay",
		}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_messages_relayed_total",
			Help: "Total successful per-peer deliveries",
		}),
		relayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_relay_bytes_total",
			Help: "Total payload bytes written to peers",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcprelay_messages_dropped_total",
			Help: "Total messages dropped before relay, by reason",
		}, []string{"reason"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_write_errors_total",
			Help: "Total failed writes to peers during relay",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcprelay_accept_errors_total",
			Help: "Total failed accepts on the relay listener",
		}),
	}

	queueLength := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tcprelay_event_queue_length",
		Help: "Events waiting in the hub queue",
	}, func() float64 {
		if fn := m.queueLength.Load(); fn != nil {
			return float64((*fn)())
		}
		return 0
	})

	m.registry.MustRegister(
		m.clientsConnected,
		m.connections,
		m.disconnections,
		m.messagesReceived,
		m.messagesRelayed,
		m.relayBytes,
		m.messagesDropped,
		m.writeErrors,
		m.acceptErrors,
		queueLength,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create the labelled series so they are exported at zero.
	for _, reason := range []string{ReasonUnknownClient, ReasonInvalidUTF8, ReasonRateLimited} {
		m.messagesDropped.WithLabelValues(reason)
	}

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetQueueLengthFunc sets the callback backing the event queue gauge.
func (m *Metrics) SetQueueLengthFunc(fn func() int) {
	m.queueLength.Store(&fn)
}

// SetClients records the current registry size.
func (m *Metrics) SetClients(n int) {
	m.clientsConnected.Set(float64(n))
}

// ClientConnected counts a processed connect event.
func (m *Metrics) ClientConnected() {
	m.connections.Inc()
}

// ClientDisconnected counts a client removed from the registry.
func (m *Metrics) ClientDisconnected() {
	m.disconnections.Inc()
}

// MessageReceived counts a message accepted for relay.
func (m *Metrics) MessageReceived() {
	m.messagesReceived.Inc()
}

// MessageRelayed counts one delivery of size bytes to one peer.
func (m *Metrics) MessageRelayed(size int) {
	m.messagesRelayed.Inc()
	m.relayBytes.Add(float64(size))
}

// MessageDropped counts a message dropped for reason.
func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// WriteError counts a failed write to a peer.
func (m *Metrics) WriteError() {
	m.writeErrors.Inc()
}

// AcceptError counts a failed accept.
func (m *Metrics) AcceptError() {
	m.acceptErrors.Inc()
}
