// Package metrics exposes Prometheus metrics for batch dispatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics interface consumed by the dispatch pipeline.
// A nil Recorder is valid everywhere and means "no metrics".
type Recorder interface {
	// AccountInitialized counts a successfully initialized account.
	AccountInitialized()

	// KeyRejected counts a key that failed derivation or state lookup.
	KeyRejected()

	// TxOutcome counts a terminal dispatch outcome by status.
	TxOutcome(status string)

	// ObserveSubmitLatency records one submission round-trip in seconds.
	ObserveSubmitLatency(seconds float64)

	// ObserveConfirmLatency records submit-to-terminal-receipt time in seconds.
	ObserveConfirmLatency(seconds float64)

	// ObserveAttempts records how many attempts one account's dispatch took.
	ObserveAttempts(attempts int)
}

// PrometheusMetrics implements Recorder with Prometheus collectors.
type PrometheusMetrics struct {
	accountsInitialized prometheus.Counter
	keysRejected        prometheus.Counter
	txTotal             *prometheus.CounterVec
	submitLatency       prometheus.Histogram
	confirmLatency      prometheus.Histogram
	dispatchAttempts    prometheus.Histogram
}

// NewPrometheusMetrics creates and registers all metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		accountsInitialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchsender_accounts_initialized_total",
			Help: "Accounts that passed key derivation and state lookup",
		}),
		keysRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchsender_keys_rejected_total",
			Help: "Keys rejected during derivation or state lookup",
		}),
		txTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchsender_transactions_total",
				Help: "Terminal dispatch outcomes by status",
			},
			[]string{"status"},
		),
		submitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batchsender_submit_latency_seconds",
			Help:    "eth_sendRawTransaction round-trip latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		confirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batchsender_confirm_latency_seconds",
			Help:    "Submission-to-terminal-receipt latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		dispatchAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batchsender_dispatch_attempts",
			Help:    "Attempts taken per account dispatch",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}),
	}
}

func (m *PrometheusMetrics) AccountInitialized() { m.accountsInitialized.Inc() }

func (m *PrometheusMetrics) KeyRejected() { m.keysRejected.Inc() }

func (m *PrometheusMetrics) TxOutcome(status string) {
	m.txTotal.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) ObserveSubmitLatency(seconds float64) {
	m.submitLatency.Observe(seconds)
}

func (m *PrometheusMetrics) ObserveConfirmLatency(seconds float64) {
	m.confirmLatency.Observe(seconds)
}

func (m *PrometheusMetrics) ObserveAttempts(attempts int) {
	m.dispatchAttempts.Observe(float64(attempts))
}
