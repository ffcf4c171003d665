package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// Sync result label values.
const (
	ResultSubmitted = "submitted"
	ResultConfirmed = "confirmed"
	ResultRejected  = "rejected"
	ResultPending   = "pending"
	ResultError     = "error"
	ResultClaimLost = "claim_lost"
)

var (
	// Sync engine metrics
	SyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddocs_sync_events_total",
			Help: "Events processed by the sync engine",
		},
		[]string{"phase", "result"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddocs_sync_run_duration_seconds",
			Help:    "Duration of one scheduler trigger run in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	SyncRunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddocs_sync_runs_skipped_total",
			Help: "Trigger firings skipped because the previous run was still in flight",
		},
		[]string{"trigger"},
	)

	EventsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddocs_events",
			Help: "Events currently stored, by status",
		},
		[]string{"status"},
	)

	EventsRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddocs_events_retried_total",
			Help: "Failed events reset to pending",
		},
	)

	// Protocol dispatcher metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddocs_mcp_requests_total",
			Help: "JSON-RPC requests dispatched",
		},
		[]string{"method", "outcome"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddocs_mcp_tool_calls_total",
			Help: "tools/call invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddocs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveStatusCounts publishes counts to the EventsByStatus gauge. Statuses
// absent from counts are reported as zero.
func ObserveStatusCounts(counts models.StatusCounts) {
	for _, s := range []models.EventStatus{
		models.EventStatusPending,
		models.EventStatusSubmitted,
		models.EventStatusResolved,
		models.EventStatusFailed,
	} {
		EventsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
