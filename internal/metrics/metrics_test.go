package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveWriteLabelsOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWrite("insert", "tasks", nil)
	m.ObserveWrite("insert", "tasks", nil)
	m.ObserveWrite("delete", "tasks", errors.New("boom"))

	if got := testutil.ToFloat64(m.Writes.WithLabelValues("insert", "tasks", "ok")); got != 2 {
		t.Fatalf("expected 2 ok inserts, got %v", got)
	}
	if got := testutil.ToFloat64(m.Writes.WithLabelValues("delete", "tasks", "error")); got != 1 {
		t.Fatalf("expected 1 failed delete, got %v", got)
	}
}

func TestSubscriptionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	if got := testutil.ToFloat64(m.LiveSubscriptions); got != 1 {
		t.Fatalf("expected 1 live subscription, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveWrite("insert", "tasks", nil)
	m.CascadeFailed()
	m.MirrorBatch("tasks")
	m.MirrorFailed("tasks")
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.Notified(3)
}

func TestHandlerServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Notified(2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "checker_notifications_total 2") {
		t.Fatalf("expected notifications counter in output, got:\n%s", rec.Body.String())
	}
}
