// Package metrics exposes the server's Prometheus counters and gauges:
// admitted/dropped pushes and opened/closed/active sessions. Frames written
// are not counted. Wired to
// github.com/prometheus/client_golang, the instrumentation library juju
// carries for its own subsystems.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the counters the server updates on its hot paths.
type Registry struct {
	registry *prometheus.Registry

	pushesAdmitted prometheus.Counter
	pushesDropped  prometheus.Counter
	sessionsOpened prometheus.Counter
	sessionsClosed prometheus.Counter
	activeSessions prometheus.Gauge
}

// NewRegistry registers the server's metrics on a dedicated
// prometheus.Registry (not the global default, so multiple servers in one
// process, e.g. under test, don't collide).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		pushesAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalserver_pushes_admitted_total",
			Help: "Signals admitted into the signal table by PushSignal.",
		}),
		pushesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalserver_pushes_dropped_total",
			Help: "Signals rejected by PushSignal's monotonic-timestamp check.",
		}),
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalserver_sessions_opened_total",
			Help: "TCP connections accepted.",
		}),
		sessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalserver_sessions_closed_total",
			Help: "Sessions that have fully torn down.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signalserver_sessions_active",
			Help: "Connections currently being served.",
		}),
	}
	r.registry = reg
	return r
}

// Handler serves the registry's metrics in Prometheus text exposition
// format, for mounting at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) PushAdmitted() { r.pushesAdmitted.Inc() }
func (r *Registry) PushDropped()  { r.pushesDropped.Inc() }

func (r *Registry) SessionOpened() {
	r.sessionsOpened.Inc()
	r.activeSessions.Inc()
}

func (r *Registry) SessionClosed() {
	r.sessionsClosed.Inc()
	r.activeSessions.Dec()
}
