// Package metrics defines the booking-service Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	paymentEvents *prometheus.CounterVec
	expired       prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	outbox        prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by result (created or an error kind).",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by action and result.",
		}, []string{"action", "result"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "payment_events_total",
			Help:      "Inbound payment results by source and outcome.",
		}, []string{"source", "outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "expired_total",
			Help:      "Pending appointments failed by the expiry sweeper.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "availability_cache_lookups_total",
			Help:      "Bulk availability cache lookups by result.",
		}, []string{"result"}),
		outbox: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to Kafka.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bookings, m.transitions, m.paymentEvents, m.expired, m.cacheLookups, m.outbox)
	}
	return m
}

// Booking counts one booking attempt; result is "created" or the failure kind.
func (m *Metrics) Booking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) PaymentEvent(source, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outbox.Add(float64(n))
}
