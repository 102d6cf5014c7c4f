// Package telemetry provides application-level observability for lanehq.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<LANE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Roadmap move outcomes and lane renumbering
//   - Live snapshot stream subscribers and fan-out
//   - Changelog aggregation cache hits and misses
//   - Release announcement deliveries
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/orgs/:org/boards/:board/roadmap)
// rather than the raw request URL so organization and board slugs never become label values.
// No metric is labelled by organization, board or item ID.
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
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Roadmap metrics, recorded by the roadmap service and the lane compactor job.
//
// RoadmapMovesTotal counts drop events by outcome: "moved", "noop", "rejected"
// (unknown lane, bad index, missing item) and "failed" (persistence error).
//
// Example PromQL queries:
//   - Move failure ratio:  sum(rate(roadmap_moves_total{outcome="failed"}[5m])) / sum(rate(roadmap_moves_total[5m]))
//
// LaneRenumbersTotal counts lanes renumbered because the midpoint between two
// neighbours was no longer representable, by trigger ("move" or "compactor").
var (
	RoadmapMovesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadmap_moves_total",
			Help: "Total number of roadmap drop events handled, by outcome.",
		},
		[]string{"outcome"},
	)

	LaneRenumbersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadmap_lane_renumbers_total",
			Help: "Total number of roadmap lanes renumbered, by trigger.",
		},
		[]string{"trigger"},
	)

	MutationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutation_failures_total",
			Help: "Total number of failed persisted mutations, by operation.",
		},
		[]string{"operation"},
	)
)

// Live stream metrics.
//
// LiveSubscribers is the number of open snapshot subscriptions on this instance.
// LiveEventsDelivered counts change events handed to subscribers, by result:
// "delivered" or "coalesced" (an older pending event was replaced).
var (
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_subscribers",
			Help: "Current number of open snapshot subscriptions.",
		},
	)

	LiveEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_events_delivered_total",
			Help: "Total number of change events handed to subscribers, by result.",
		},
		[]string{"result"},
	)

	LivePublishErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_publish_errors_total",
			Help: "Total number of change events that could not be published.",
		},
	)
)

// Changelog aggregation cache, keyed on organization, changelog revision and draft visibility.
//
// Example PromQL queries:
//   - Hit ratio:  rate(changelog_cache_hits_total[5m]) / (rate(changelog_cache_hits_total[5m]) + rate(changelog_cache_misses_total[5m]))
var (
	ChangelogCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changelog_cache_hits_total",
			Help: "Total number of changelog views served from the aggregation cache.",
		},
	)

	ChangelogCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changelog_cache_misses_total",
			Help: "Total number of changelog views aggregated from a fresh snapshot.",
		},
	)
)

// NotificationsSentTotal counts release announcements by result ("sent" or "failed").
var NotificationsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "release_notifications_total",
		Help: "Total number of release announcements attempted, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens when the
// application shuts down and closes the pool.
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
