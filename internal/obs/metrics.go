// Package obs exposes the Prometheus metrics of the studyctl binaries.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the transport, stores, push bridge and outbox report to.
type Recorder interface {
	RemoteRequest(op, outcome string)
	CacheFallback(collection string)
	PushEvent(eventType string)
	PushReconnect()
	OutboxOp(result string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests   *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	pushEvents *prometheus.CounterVec
	reconnects prometheus.Counter
	outbox     *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_remote_requests_total",
			Help: "Remote API calls by operation and outcome class.",
		}, []string{"op", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_cache_fallbacks_total",
			Help: "Operations served from the local cache after a remote failure.",
		}, []string{"collection"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_push_events_total",
			Help: "Push events received, by type.",
		}, []string{"type"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyctl_push_reconnects_total",
			Help: "Push stream reconnect attempts.",
		}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_outbox_ops_total",
			Help: "Pending outbox operations by replay result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.requests, c.fallbacks, c.pushEvents, c.reconnects, c.outbox)
	return c
}

func (c *Collector) RemoteRequest(op, outcome string) { c.requests.WithLabelValues(op, outcome).Inc() }
func (c *Collector) CacheFallback(collection string)  { c.fallbacks.WithLabelValues(collection).Inc() }
func (c *Collector) PushEvent(eventType string)       { c.pushEvents.WithLabelValues(eventType).Inc() }
func (c *Collector) PushReconnect()                   { c.reconnects.Inc() }
func (c *Collector) OutboxOp(result string)           { c.outbox.WithLabelValues(result).Inc() }

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RemoteRequest(string, string) {}
func (Nop) CacheFallback(string)         {}
func (Nop) PushEvent(string)             {}
func (Nop) PushReconnect()               {}
func (Nop) OutboxOp(string)              {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
