package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proctor_listing_query_duration_seconds",
			Help:    "Duration of filtered listing queries by record kind",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	RecordingsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_recordings_started_total",
			Help: "Exam recordings created",
		},
	)

	RecordingsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_recordings_ended_total",
			Help: "Exam recordings ended, by reason",
		},
		[]string{"reason"},
	)

	WarningsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_warnings_created_total",
			Help: "Exam warnings created",
		},
	)

	LostRaces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_conditional_update_lost_total",
			Help: "Conditional end-time updates that another request already applied",
		},
		[]string{"reason"},
	)

	LoginCodeCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_login_code_collisions_total",
			Help: "Generated exam login codes rejected as duplicates",
		},
	)

	MonitorOnlineExaminers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_monitor_online_examiners",
			Help: "Examiner websocket connections on this instance",
		},
	)

	MonitorMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_monitor_messages_total",
			Help: "Live monitoring messages by type and direction",
		},
		[]string{"type", "direction"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			QueryDuration,
			RecordingsStarted,
			RecordingsEnded,
			WarningsCreated,
			LostRaces,
			LoginCodeCollisions,
			MonitorOnlineExaminers,
			MonitorMessageCounter,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
