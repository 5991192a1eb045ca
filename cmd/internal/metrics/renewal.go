package metrics

import (
	"errors"
	"net/http"
	"time"

	"workfolio/cmd/internal/renewal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RenewalCollectors count client-side renewal attempts. They live on their own registry
// because coordinators run in the process making intercepted requests, not in the portal.
type RenewalCollectors struct {
	reg *prometheus.Registry

	total   *prometheus.CounterVec
	waiters *prometheus.HistogramVec
}

// NewRenewal registers the renewal collectors on a fresh registry.
func NewRenewal() (*RenewalCollectors, error) {
	reg := prometheus.NewRegistry()
	c := &RenewalCollectors{
		reg: reg,
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "renewal_attempts_total",
			Help:      "Settled client renewal attempts by result.",
		}, []string{"namespace", "result"}),
		waiters: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "renewal_waiters",
			Help:      "Callers sharing one renewal attempt.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}, []string{"namespace"}),
	}
	for _, col := range []prometheus.Collector{c.total, c.waiters} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler serves the renewal registry in the Prometheus exposition format.
func (c *RenewalCollectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Registry returns the underlying registry.
func (c *RenewalCollectors) Registry() *prometheus.Registry { return c.reg }

// RenewalSettled implements renewal.Observer.
func (c *RenewalCollectors) RenewalSettled(namespace string, err error, _ time.Duration, waiters int) {
	if c == nil {
		return
	}
	c.total.WithLabelValues(namespace, renewalResult(err)).Inc()
	c.waiters.WithLabelValues(namespace).Observe(float64(waiters))
}

// Attempts returns the settled attempt count for namespace and result.
func (c *RenewalCollectors) Attempts(namespace, result string) float64 {
	if c == nil {
		return 0
	}
	mfs, err := c.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != "portal_renewal_attempts_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["namespace"] == namespace && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func renewalResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, renewal.ErrRejected):
		return "rejected"
	case errors.Is(err, renewal.ErrTransport):
		return "transport"
	default:
		return "error"
	}
}

var _ renewal.Observer = (*RenewalCollectors)(nil)
