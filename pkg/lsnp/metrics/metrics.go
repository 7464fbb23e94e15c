// Package metrics exposes local Prometheus counters/gauges for a running
// peer: messages sent/received, ACK retries/abandonments, simulated
// drops, and the known-peer count. This is pure observability — nothing
// here is part of the wire protocol.
//
// Grounded on the client_golang stack already present in the pack's
// runZeroInc-sockstats/runZeroInc-conniver go.mod files (those repos
// export kernel TCP_INFO gauges the same way: a Registry struct holding
// pre-registered collectors, with an HTTP handler for scraping).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry holds every collector a peer reports. A nil *Registry is
// valid and every method becomes a no-op, so components can be handed a
// Registry unconditionally without a "metrics enabled" branch at every
// call site.
type Registry struct {
	reg *prometheus.Registry

	sent      prometheus.Counter
	received  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	retries   prometheus.Counter
	abandoned prometheus.Counter
	peers     prometheus.Gauge
}

// New builds a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsnp_messages_sent_total",
			Help: "Total datagrams sent by this peer.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_messages_received_total",
			Help: "Total datagrams received, by TYPE.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_simulated_drops_total",
			Help: "Sends dropped by simulated loss, by class.",
		}, []string{"class"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsnp_ack_retries_total",
			Help: "Total ACK retry attempts.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsnp_ack_abandoned_total",
			Help: "Pending sends abandoned after exhausting retries.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lsnp_known_peers",
			Help: "Number of peers currently in the directory.",
		}),
	}
	reg.MustRegister(r.sent, r.received, r.dropped, r.retries, r.abandoned, r.peers)
	return r
}

// Handler returns the promhttp handler for this registry, for the debug
// HTTP listener cmd/lsnp-peer starts when --metrics-addr is set.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) IncSent() {
	if r == nil {
		return
	}
	r.sent.Inc()
}

func (r *Registry) IncReceived(msgType string) {
	if r == nil {
		return
	}
	r.received.WithLabelValues(msgType).Inc()
}

func (r *Registry) IncDropped(class string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(class).Inc()
}

func (r *Registry) IncRetries() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

func (r *Registry) IncAbandoned() {
	if r == nil {
		return
	}
	r.abandoned.Inc()
}

func (r *Registry) SetPeerCount(n int) {
	if r == nil {
		return
	}
	r.peers.Set(float64(n))
}
