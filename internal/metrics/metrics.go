// Package metrics exposes Prometheus collectors for store writes, mirror
// subscriptions and notifications. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors
type Metrics struct {
	Writes            *prometheus.CounterVec
	CascadeFailures   prometheus.Counter
	MirrorBatches     *prometheus.CounterVec
	MirrorFailures    *prometheus.CounterVec
	LiveSubscriptions prometheus.Gauge
	Notifications     prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checker",
			Name:      "writes_total",
			Help:      "Store writes by operation, collection and outcome.",
		}, []string{"op", "collection", "outcome"}),
		CascadeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checker",
			Name:      "cascade_failures_total",
			Help:      "Project deletes whose task cascade did not complete.",
		}),
		MirrorBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checker",
			Name:      "mirror_batches_total",
			Help:      "Change batches applied by live collection mirrors.",
		}, []string{"collection"}),
		MirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checker",
			Name:      "mirror_failures_total",
			Help:      "Mirror subscriptions that ended with an error.",
		}, []string{"collection"}),
		LiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checker",
			Name:      "live_subscriptions",
			Help:      "Mirror subscriptions currently open.",
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checker",
			Name:      "notifications_total",
			Help:      "Task completion notifications emitted.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Writes, m.CascadeFailures, m.MirrorBatches, m.MirrorFailures, m.LiveSubscriptions, m.Notifications)
	}
	return m
}

// Handler serves the collectors in g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveWrite counts one write
func (m *Metrics) ObserveWrite(op, collection string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Writes.WithLabelValues(op, collection, outcome).Inc()
}

// CascadeFailed counts one incomplete cascade
func (m *Metrics) CascadeFailed() {
	if m == nil {
		return
	}
	m.CascadeFailures.Inc()
}

// MirrorBatch counts one applied batch
func (m *Metrics) MirrorBatch(collection string) {
	if m == nil {
		return
	}
	m.MirrorBatches.WithLabelValues(collection).Inc()
}

// MirrorFailed counts one failed subscription
func (m *Metrics) MirrorFailed(collection string) {
	if m == nil {
		return
	}
	m.MirrorFailures.WithLabelValues(collection).Inc()
}

// SubscriptionOpened tracks a newly opened mirror subscription
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.LiveSubscriptions.Inc()
}

// SubscriptionClosed tracks a mirror subscription ending for any reason
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.LiveSubscriptions.Dec()
}

// Notified counts emitted notifications
func (m *Metrics) Notified(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Notifications.Add(float64(n))
}
