// Package metrics exposes Prometheus collectors for credential reissue and renewal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the portal server's auth metrics.
type Collectors struct {
	reg *prometheus.Registry

	reissueTotal    *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	eventsPushed    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and process
// collectors.
func New() (*Collectors, error) {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		reg: reg,
		reissueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "reissue_total",
			Help:      "Reissue endpoint outcomes by credential namespace.",
		}, []string{"namespace", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "reissue_upstream_seconds",
			Help:      "Latency of identity service reissue calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace"}),
		eventsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "auth_events_pushed_total",
			Help:      "Auth events delivered to connected sockets.",
		}, []string{"namespace", "type"}),
	}

	for _, col := range []prometheus.Collector{
		c.reissueTotal,
		c.upstreamLatency,
		c.eventsPushed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.reg }

// ReissueOutcome counts one reissue endpoint outcome.
func (c *Collectors) ReissueOutcome(namespace, outcome string) {
	if c == nil {
		return
	}
	c.reissueTotal.WithLabelValues(namespace, outcome).Inc()
}

// UpstreamLatency observes one identity service call.
func (c *Collectors) UpstreamLatency(namespace string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamLatency.WithLabelValues(namespace).Observe(d.Seconds())
}

// EventPushed counts one auth event written to a socket.
func (c *Collectors) EventPushed(namespace, typ string) {
	if c == nil {
		return
	}
	c.eventsPushed.WithLabelValues(namespace, typ).Inc()
}
