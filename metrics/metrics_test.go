package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncrementConnect("connected")
	m.IncrementHealthCheck("ok")
	m.IncrementTransaction("1", "submitted")
	m.SetConnectionState(2)
	m.ObserveGenesisFetch("file", time.Millisecond)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementConnect("connected")
	m.IncrementConnect("connected")
	m.IncrementConnect("failed")
	m.IncrementTransaction("101", "signed")
	m.SetConnectionState(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("101", "signed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionState))
}
