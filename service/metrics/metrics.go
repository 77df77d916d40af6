package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Tron RPC Metrics
	tronRPCCallsTotal   *prometheus.CounterVec
	tronRPCCallDuration *prometheus.HistogramVec
	tronRPCRateLimited  *prometheus.CounterVec
	httpClientRequests  *prometheus.CounterVec
	httpClientDuration  *prometheus.HistogramVec

	// Transfer Lifecycle Metrics
	transferRunsTotal        *prometheus.CounterVec
	transferRunDuration      *prometheus.HistogramVec
	transferTransitionsTotal *prometheus.CounterVec
	broadcastAttemptsTotal   *prometheus.CounterVec
	broadcastRetriesTotal    *prometheus.CounterVec
	confirmationPollsTotal   *prometheus.CounterVec
	confirmationWait         *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal Metrics
	activityDuration    *prometheus.HistogramVec
	activityErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Tron RPC Metrics
		tronRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tron_rpc_calls_total",
				Help: "Total number of Tron RPC calls by method and status",
			},
			[]string{"method", "status", "network"},
		),
		tronRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tron_rpc_call_duration_seconds",
				Help:    "Duration of Tron RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "network"},
		),
		tronRPCRateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tron_rpc_rate_limited_total",
				Help: "Total number of Tron RPC calls delayed by the client-side rate limiter",
			},
			[]string{"network"},
		),
		httpClientRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_client_requests_total",
				Help: "Total number of outbound HTTP requests",
			},
			[]string{"host", "path", "status"},
		),
		httpClientDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_client_request_duration_seconds",
				Help:    "Duration of outbound HTTP requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"host", "path"},
		),

		// Transfer Lifecycle Metrics
		transferRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_runs_total",
				Help: "Total number of transfer orchestration runs by final state",
			},
			[]string{"network", "outcome", "dry_run"},
		),
		transferRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_run_duration_seconds",
				Help:    "Duration of transfer orchestration runs in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"network", "outcome"},
		),
		transferTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_state_transitions_total",
				Help: "Total number of transfer state machine transitions by target state",
			},
			[]string{"network", "state"},
		),
		broadcastAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_broadcast_attempts_total",
				Help: "Total number of broadcast attempts by result",
			},
			[]string{"network", "result"},
		),
		broadcastRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_broadcast_retries_total",
				Help: "Total number of broadcast retries by reason",
			},
			[]string{"network", "reason"},
		),
		confirmationPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_polls_total",
				Help: "Total number of transaction status polls by observed state",
			},
			[]string{"state"},
		),
		confirmationWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirmation_wait_seconds",
				Help:    "Time spent waiting for settlement in seconds",
				Buckets: []float64{1, 3, 6, 10, 20, 30, 60, 120},
			},
			[]string{"state"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activity executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"activity"},
		),
		activityErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "temporal_activity_errors_total",
				Help: "Total number of Temporal activity executions that returned an error",
			},
			[]string{"activity"},
		),
	}
}

// Tron RPC metric helpers

// RecordRPCCall records a Tron RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, network string, duration float64) {
	if m == nil {
		return
	}
	m.tronRPCCallsTotal.WithLabelValues(method, status, network).Inc()
	m.tronRPCCallDuration.WithLabelValues(method, network).Observe(duration)
}

// RecordRateLimited records a call that had to wait on the client-side limiter.
func (m *Metrics) RecordRateLimited(network string) {
	if m == nil {
		return
	}
	m.tronRPCRateLimited.WithLabelValues(network).Inc()
}

// RecordHTTPClientRequest records an outbound HTTP request with duration.
func (m *Metrics) RecordHTTPClientRequest(host, path string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpClientRequests.WithLabelValues(host, path, status).Inc()
	m.httpClientDuration.WithLabelValues(host, path).Observe(duration)
}

// Transfer lifecycle metric helpers

// RecordTransferRun records a finished orchestration run.
func (m *Metrics) RecordTransferRun(network, outcome string, dryRun bool, duration float64) {
	if m == nil {
		return
	}
	dry := "false"
	if dryRun {
		dry = "true"
	}
	m.transferRunsTotal.WithLabelValues(network, outcome, dry).Inc()
	m.transferRunDuration.WithLabelValues(network, outcome).Observe(duration)
}

// RecordTransition records a state machine transition.
func (m *Metrics) RecordTransition(network, state string) {
	if m == nil {
		return
	}
	m.transferTransitionsTotal.WithLabelValues(network, state).Inc()
}

// RecordBroadcastAttempt records a single broadcast attempt.
func (m *Metrics) RecordBroadcastAttempt(network, result string) {
	if m == nil {
		return
	}
	m.broadcastAttemptsTotal.WithLabelValues(network, result).Inc()
}

// RecordBroadcastRetry records a retry after a transient broadcast failure.
func (m *Metrics) RecordBroadcastRetry(network, reason string) {
	if m == nil {
		return
	}
	m.broadcastRetriesTotal.WithLabelValues(network, reason).Inc()
}

// RecordConfirmationPoll records one status poll and the state it observed.
func (m *Metrics) RecordConfirmationPoll(state string) {
	if m == nil {
		return
	}
	m.confirmationPollsTotal.WithLabelValues(state).Inc()
}

// RecordConfirmationWait records how long a confirmation wait lasted.
func (m *Metrics) RecordConfirmationWait(state string, duration float64) {
	if m == nil {
		return
	}
	m.confirmationWait.WithLabelValues(state).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Temporal metric helpers

// RecordActivityDuration records how long an activity ran and whether it failed.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	if m == nil {
		return
	}
	m.activityDuration.WithLabelValues(activity).Observe(duration)
	if err != nil {
		m.activityErrorsTotal.WithLabelValues(activity).Inc()
	}
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code == 0:
		return "transport_error"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
