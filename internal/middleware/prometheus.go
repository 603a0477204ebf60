package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// PrometheusMetrics Prometheus 指标收集器，同时作为分析流水线的 Observer
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分析指标
	sourcesTotal       *prometheus.CounterVec
	sourceDuration     *prometheus.HistogramVec
	sessionsTotal      *prometheus.CounterVec
	sessionDuration    prometheus.Histogram
	sessionPackages    prometheus.Histogram
	analysesInProgress prometheus.Gauge

	// 系统指标
	memoryUsage     prometheus.Gauge
	goroutinesCount prometheus.Gauge
	gcCount         prometheus.Gauge

	// Worker Pool 指标
	workerPoolSize      prometheus.Gauge
	workerPoolActive    prometheus.Gauge
	workerPoolQueueSize prometheus.Gauge

	// 队列指标
	queueMessagesTotal *prometheus.CounterVec
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "apk_intake"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"method", "path"},
		),

		sourcesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sources_analysed_total",
				Help:      "Total number of data sources analysed",
			},
			[]string{"type", "result"}, // result: ok, empty, error
		),
		sourceDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_analysis_duration_seconds",
				Help:      "Per data source analysis duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"type"},
		),
		sessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of completed analysis sessions",
			},
			[]string{"mode"},
		),
		sessionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Analysis session duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60, 300},
			},
		),
		sessionPackages: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_packages",
				Help:      "Number of packages per analysis session",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		analysesInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "analyses_in_progress",
				Help:      "Number of analysis calls currently running",
			},
		),

		memoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		goroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_count",
				Help:      "Current number of goroutines",
			},
		),
		gcCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gc_count",
				Help:      "Number of completed GC cycles",
			},
		),

		workerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_size",
				Help:      "Total number of workers in the pool",
			},
		),
		workerPoolActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_active",
				Help:      "Number of active workers",
			},
		),
		workerPoolQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_size",
				Help:      "Number of jobs waiting in queue",
			},
		),

		queueMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Total number of queue messages handled",
			},
			[]string{"result"}, // acked, requeued, rejected
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// SourceAnalysed 记录单个数据来源的分析结果
func (pm *PrometheusMetrics) SourceAnalysed(dataType domain.DataType, entities int, duration time.Duration, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case entities == 0:
		result = "empty"
	}
	pm.sourcesTotal.WithLabelValues(string(dataType), result).Inc()
	pm.sourceDuration.WithLabelValues(string(dataType)).Observe(duration.Seconds())
}

// SessionCompleted 记录一次完整的分析调用
func (pm *PrometheusMetrics) SessionCompleted(mode domain.SessionMode, packages int, duration time.Duration) {
	pm.sessionsTotal.WithLabelValues(string(mode)).Inc()
	pm.sessionDuration.Observe(duration.Seconds())
	pm.sessionPackages.Observe(float64(packages))
}

// AnalysisStarted 记录分析开始
func (pm *PrometheusMetrics) AnalysisStarted() {
	pm.analysesInProgress.Inc()
}

// AnalysisFinished 记录分析结束（含失败和取消）
func (pm *PrometheusMetrics) AnalysisFinished() {
	pm.analysesInProgress.Dec()
}

// UpdateMemoryStats 更新内存统计
func (pm *PrometheusMetrics) UpdateMemoryStats(stats MemoryStats) {
	pm.memoryUsage.Set(float64(stats.Alloc))
	pm.goroutinesCount.Set(float64(stats.Goroutines))
	pm.gcCount.Set(float64(stats.NumGC))
}

// UpdateWorkerPoolStats 更新 Worker Pool 统计
func (pm *PrometheusMetrics) UpdateWorkerPoolStats(size, active, queueSize int) {
	pm.workerPoolSize.Set(float64(size))
	pm.workerPoolActive.Set(float64(active))
	pm.workerPoolQueueSize.Set(float64(queueSize))
}

// RecordQueueMessage 记录队列消息的处理结果
func (pm *PrometheusMetrics) RecordQueueMessage(result string) {
	pm.queueMessagesTotal.WithLabelValues(result).Inc()
}
