// Package metrics provides Prometheus metrics for the YVP service:
// workflow transitions, ledger computations, data-integrity anomalies
// and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Workflow ───────────────────────────────────────────────────────────────

// TaskTransitions counts committed workflow transitions by operation.
var TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "task_transitions_total",
	Help:      "Committed task state transitions.",
}, []string{"op"})

// TaskRejections counts refused operations by operation and reason.
var TaskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "task_rejections_total",
	Help:      "Task operations refused (state conflict, capacity, validation, permission).",
}, []string{"op", "reason"})

// TasksCreated counts created tasks by type.
var TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "tasks_created_total",
	Help:      "Tasks created.",
}, []string{"type"})

// AdminOverrides counts administrative edits outside the workflow.
var AdminOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "admin_overrides_total",
	Help:      "Administrative task overrides; flagged=true when an invariant was broken.",
}, []string{"flagged"})

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerComputations counts ledger queries by kind.
var LedgerComputations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "ledger_computations_total",
	Help:      "Ledger computations by kind (balance, dashboard, leaderboard, period).",
}, []string{"kind"})

// LedgerLatency tracks time to load a snapshot and compute a result.
var LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "yvp",
	Name:      "ledger_latency_seconds",
	Help:      "Ledger computation duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
}, []string{"kind"})

// IntegrityWarnings counts data anomalies degraded to zero by the ledger.
var IntegrityWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "ledger_integrity_warnings_total",
	Help:      "Data-integrity anomalies found while computing balances.",
}, []string{"kind"})

// LedgerRecords counts penalty and reward administration by record and action.
var LedgerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yvp",
	Name:      "ledger_records_total",
	Help:      "Penalty and reward writes by record type and action.",
}, []string{"record", "action"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "yvp",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
