// Package metrics exposes Prometheus counters for reservation activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservations"

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	created    *prometheus.CounterVec
	cancelled  *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	pinFailure prometheus.Counter
	lockouts   prometheus.Counter
	errors     *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Count of reservations created, by request kind.",
		}, []string{"kind"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancelled_total",
			Help:      "Count of reservations cancelled, by cancel scope.",
		}, []string{"scope"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Count of create requests rejected by a conflict, by what they collided with.",
		}, []string{"type"}),
		pinFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_pin_failures_total",
			Help:      "Count of cancel attempts with a wrong PIN.",
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_lockouts_total",
			Help:      "Count of reservations locked after repeated PIN failures.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Count of failed operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
	reg.MustRegister(m.created, m.cancelled, m.conflicts, m.pinFailure, m.lockouts, m.errors)
	return m
}

// ReservationsCreated adds n reservations created by a "single" or "series" request.
func (m *Metrics) ReservationsCreated(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.created.WithLabelValues(kind).Add(float64(n))
}

// ReservationsCancelled adds n reservations cancelled with the given scope.
func (m *Metrics) ReservationsCancelled(scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancelled.WithLabelValues(scope).Add(float64(n))
}

// Conflict counts a rejected create request.
func (m *Metrics) Conflict(conflictType string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(conflictType).Inc()
}

// PINFailure counts a wrong cancel PIN.
func (m *Metrics) PINFailure() {
	if m == nil {
		return
	}
	m.pinFailure.Inc()
}

// Lockout counts a reservation entering the cancel cooldown.
func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// Error counts a failed operation by its error kind label.
func (m *Metrics) Error(operation, kind string) {
	if m == nil || kind == "" {
		return
	}
	m.errors.WithLabelValues(operation, kind).Inc()
}
