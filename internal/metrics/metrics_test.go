package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReservationsCreated("series", 3)
	m.ReservationsCreated("single", 1)
	m.ReservationsCreated("single", 0)
	m.ReservationsCancelled("series", 2)
	m.Conflict("block")
	m.PINFailure()
	m.PINFailure()
	m.Lockout()
	m.Error("create", "conflict")
	m.Error("create", "")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.created.WithLabelValues("series")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues("single")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cancelled.WithLabelValues("series")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("block")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pinFailure))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("create", "conflict")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReservationsCreated("single", 1)
		m.ReservationsCancelled("single", 1)
		m.Conflict("reservation")
		m.PINFailure()
		m.Lockout()
		m.Error("cancel", "locked")
	})
}
