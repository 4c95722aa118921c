// Package telemetry provides application-level observability for the gateway.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<MSGCORE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authentication failures and guard-bypass signals
//   - Reaction resolution and outbound message counters
//   - Retention purge counters
//   - Recovered background panics
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:projectId/messages)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as project ids.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/projects/:projectId/messages),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics, recorded by the auth middleware and the error responder.
//
// AuthFailuresTotal is a CounterVec with labels {method, reason}. method is "api_key",
// "jwt" or "none"; reason is "unauthenticated", "forbidden" or "scope".
//
// Example PromQL queries:
//   - Invalid API key rate:   rate(auth_failures_total{method="api_key"}[5m])
//
// AuthContextMissingTotal is a CounterVec with label {operation}. Any increase means a
// protected operation ran without the authentication guard and should page someone.
//
// Example PromQL queries:
//   - Alert expression:  increase(auth_context_missing_total[5m]) > 0
var (
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of rejected authentication or authorization attempts, by method and reason.",
		},
		[]string{"method", "reason"},
	)

	AuthContextMissingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_context_missing_total",
			Help: "Total number of protected operations reached without an authentication context, by operation.",
		},
		[]string{"operation"},
	)
)

// Messaging metrics.
//
// ReactionsResolvedTotal counts message pages for which reaction state was resolved.
//
// MessagesQueuedTotal is a CounterVec with label {platform} incremented for every outbound
// job published to the broker (send, delete, react, unreact).
//
// Example PromQL queries:
//   - Outbound rate by platform:  sum by (platform) (rate(messages_queued_total[5m]))
var (
	ReactionsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reactions_resolved_total",
			Help: "Total number of message pages for which reaction state was resolved.",
		},
	)

	MessagesQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_queued_total",
			Help: "Total number of outbound message jobs published to the broker, by platform.",
		},
		[]string{"platform"},
	)
)

// RetentionPurgedRowsTotal is a CounterVec with label {table} incremented by the rows the
// retention job (or an on-demand cleanup) deletes.
//
// Example PromQL queries:
//   - Rows purged per day:  increase(retention_purged_rows_total[24h])
var RetentionPurgedRowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retention_purged_rows_total",
		Help: "Total number of rows deleted by message retention, by table.",
	},
	[]string{"table"},
)

// BackgroundPanicsTotal is a CounterVec with label {task} incremented each time a
// background goroutine started through safego panics and is recovered.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_panics_total",
		Help: "Total number of recovered panics in background tasks, by task.",
	},
	[]string{"task"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <MSGCORE_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
