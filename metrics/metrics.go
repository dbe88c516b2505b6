// Package metrics holds the Prometheus instruments shared by the ledger,
// genesis and submission packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger interaction.
//
// A nil *Metrics is valid; every method is a no-op on it.
type Metrics struct {
	// Connect attempts by result: "connected", "failed", "timeout".
	ConnectAttempts *prometheus.CounterVec

	// Health checks by result: "ok", "negative", "error".
	HealthChecks *prometheus.CounterVec

	// Transactions by ledger type code and outcome.
	Transactions *prometheus.CounterVec

	// Current connection state (0 disconnected, 1 connecting, 2 connected, 3 failed).
	ConnectionState prometheus.Gauge

	GenesisFetch *prometheus.HistogramVec
}

// New registers all instruments against reg. A nil reg registers against the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "indyforge_ledger_connect_attempts_total",
			Help: "Ledger pool connect attempts by result",
		}, []string{"result"}),

		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "indyforge_ledger_health_checks_total",
			Help: "Ledger health checks by result",
		}, []string{"result"}),

		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "indyforge_transactions_total",
			Help: "Transactions handled by type and outcome",
		}, []string{"type", "outcome"}),

		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "indyforge_ledger_connection_state",
			Help: "Ledger connection state (0 disconnected, 1 connecting, 2 connected, 3 failed)",
		}),

		GenesisFetch: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indyforge_genesis_fetch_duration_seconds",
			Help:    "Duration of genesis loads by source kind",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"source"}),
	}
}

func (m *Metrics) IncrementConnect(result string) {
	if m != nil {
		m.ConnectAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementHealthCheck(result string) {
	if m != nil {
		m.HealthChecks.WithLabelValues(result).Inc()
	}
}

// IncrementTransaction records a transaction outcome such as "prepared",
// "signed", "submitted" or "rejected".
func (m *Metrics) IncrementTransaction(txnType, outcome string) {
	if m != nil {
		m.Transactions.WithLabelValues(txnType, outcome).Inc()
	}
}

func (m *Metrics) SetConnectionState(v int) {
	if m != nil {
		m.ConnectionState.Set(float64(v))
	}
}

// ObserveGenesisFetch records how long a genesis load took.
func (m *Metrics) ObserveGenesisFetch(source string, d time.Duration) {
	if m != nil {
		m.GenesisFetch.WithLabelValues(source).Observe(d.Seconds())
	}
}
