package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Booking("created")
	m.Booking("created")
	m.Booking("slot_already_booked")
	m.Transition("confirm", "confirmed")
	m.PaymentEvent("stripe", "success")
	m.Expired(3)
	m.Expired(0)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.OutboxPublished(5)

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created bookings, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookings.WithLabelValues("slot_already_booked")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.expired); got != 3 {
		t.Fatalf("expected 3 expired, got %v", got)
	}
	if got := testutil.ToFloat64(m.outbox); got != 5 {
		t.Fatalf("expected 5 published, got %v", got)
	}
	if n := testutil.CollectAndCount(m.cacheLookups); n != 2 {
		t.Fatalf("expected hit and miss series, got %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Booking("created")
	m.Transition("cancel", "cancelled")
	m.PaymentEvent("callback", "failure")
	m.Expired(1)
	m.CacheLookup(true)
	m.OutboxPublished(1)
}
