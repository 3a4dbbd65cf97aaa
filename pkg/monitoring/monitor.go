package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsProcessed 按终态与采纳层统计处理完的提交数
	SubmissionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omr_submissions_processed_total",
			Help: "Total number of graded submissions by outcome and accepted tier",
		},
		[]string{"status", "tier"},
	)

	// ProcessingDuration 单个提交从取图到落库的整体耗时
	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "omr_processing_duration_seconds",
			Help:    "End-to-end duration of one submission grading",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// TierDuration 各识别层单次调用耗时
	TierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "omr_tier_duration_seconds",
			Help:    "Duration of one detection tier invocation",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tier"},
	)

	// TierFailures 层调用失败（超时/网络/格式错误）
	TierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omr_tier_failures_total",
			Help: "Detection tier invocation failures",
		},
		[]string{"tier"},
	)

	// TierFallbacks 层置信度不达标触发降级的次数
	TierFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omr_tier_fallbacks_total",
			Help: "Detection tiers rejected for low aggregate confidence",
		},
		[]string{"tier"},
	)

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
)

func Init() {
	prometheus.MustRegister(SubmissionsProcessed)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(TierDuration)
	prometheus.MustRegister(TierFailures)
	prometheus.MustRegister(TierFallbacks)
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
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
