package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestWorkflowMetrics(t *testing.T) {
	TaskTransitions.WithLabelValues("claim").Inc()
	TaskRejections.WithLabelValues("claim", "capacity").Inc()
	TasksCreated.WithLabelValues("pool").Inc()
	AdminOverrides.WithLabelValues("true").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"yvp_task_transitions_total",
		"yvp_task_rejections_total",
		"yvp_tasks_created_total",
		"yvp_admin_overrides_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestLedgerMetrics(t *testing.T) {
	before := testutil.ToFloat64(IntegrityWarnings.WithLabelValues("negative_value"))
	IntegrityWarnings.WithLabelValues("negative_value").Inc()
	after := testutil.ToFloat64(IntegrityWarnings.WithLabelValues("negative_value"))
	if after-before != 1 {
		t.Errorf("IntegrityWarnings delta = %v, want 1", after-before)
	}

	LedgerComputations.WithLabelValues("balance").Inc()
	LedgerLatency.WithLabelValues("balance").Observe(0.002)
	LedgerRecords.WithLabelValues("penalty", "insert").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"yvp_ledger_computations_total",
		"yvp_ledger_latency_seconds",
		"yvp_ledger_records_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthGauge(t *testing.T) {
	HealthCheckStatus.WithLabelValues("sqlite").Set(1)
	if got := testutil.ToFloat64(HealthCheckStatus.WithLabelValues("sqlite")); got != 1 {
		t.Errorf("health gauge = %v, want 1", got)
	}
}
