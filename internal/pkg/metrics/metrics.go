package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tztracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tztracker",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Engine metrics
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "engine",
		Name:      "evaluations_total",
		Help:      "Total position evaluations by containment result",
	}, []string{"result"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tztracker",
		Subsystem: "engine",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of a full position evaluation",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	ZoneChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "engine",
		Name:      "zone_changes_total",
		Help:      "Total confirmed timezone changes",
	}, []string{"to_zone"})

	HysteresisResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "engine",
		Name:      "hysteresis_resets_total",
		Help:      "Pending zone switches cancelled by a return to the confirmed zone",
	})

	TrackedEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "engine",
		Name:      "tracked_entities",
		Help:      "Entities with in-memory tracking state",
	})

	// Dataset metrics
	DatasetBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "build_duration_seconds",
		Help:      "Duration of boundary dataset compilation",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	DatasetRegions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "regions",
		Help:      "Regions in the active boundary dataset",
	})

	DatasetZones = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "zones",
		Help:      "Distinct timezones in the active boundary dataset",
	})

	DatasetAdjacencyPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "adjacency_pairs",
		Help:      "True-adjacent region pairs in the active boundary dataset",
	})

	DatasetBuiltTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "built_timestamp_seconds",
		Help:      "Unix time the active boundary dataset was compiled",
	})

	DatasetLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "dataset",
		Name:      "loads_total",
		Help:      "Dataset load attempts by operation and outcome",
	}, []string{"op", "status"})

	// Position source metrics
	PositionPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "source",
		Name:      "position_polls_total",
		Help:      "Total position polls against the home automation source",
	}, []string{"entity"})

	PositionPollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "source",
		Name:      "position_poll_errors_total",
		Help:      "Total failed position polls",
	}, []string{"entity"})

	PositionPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tztracker",
		Subsystem: "source",
		Name:      "position_poll_duration_seconds",
		Help:      "Duration of position polls against the home automation source",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"entity"})

	// Broker metrics
	SamplesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "nats",
		Name:      "position_samples_total",
		Help:      "Total position samples consumed from the broker",
	}, []string{"status"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tztracker",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tztracker",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
// The interface assertion keeps this package free of a pgxpool import.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
