package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.AccountInitialized()
	m.AccountInitialized()
	m.KeyRejected()
	m.TxOutcome("confirmed")
	m.TxOutcome("confirmed")
	m.TxOutcome("timeout")

	if got := testutil.ToFloat64(m.accountsInitialized); got != 2 {
		t.Errorf("accounts initialized = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.keysRejected); got != 1 {
		t.Errorf("keys rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.txTotal.WithLabelValues("confirmed")); got != 2 {
		t.Errorf("confirmed outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.txTotal.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeout outcomes = %v, want 1", got)
	}
}

func TestPrometheusMetrics_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.ObserveSubmitLatency(0.02)
	m.ObserveConfirmLatency(1.5)
	m.ObserveAttempts(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	want := map[string]bool{
		"batchsender_submit_latency_seconds":  false,
		"batchsender_confirm_latency_seconds": false,
		"batchsender_dispatch_attempts":       false,
	}
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
			if fam.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("%s sample count = %d, want 1", fam.GetName(), fam.GetMetric()[0].GetHistogram().GetSampleCount())
			}
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}
