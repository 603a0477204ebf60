package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/api/handlers"
	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
	"github.com/apk-analysis/apk-intake-go/internal/middleware"
	"github.com/apk-analysis/apk-intake-go/internal/service"
)

// Dependencies 路由需要的组件，MemMonitor 与 Metrics 可为空
type Dependencies struct {
	Analyses   service.AnalysisService
	Installed  handlers.InstalledStore
	Provider   installed.Provider
	Hub        *handlers.ResultsHub
	MemMonitor *middleware.MemoryMonitor
	Metrics    *middleware.PrometheusMetrics
	Queue      handlers.QueueStatus
}

func SetupRouter(cfg *config.Config, logger *logrus.Logger, deps Dependencies) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Prometheus 监控中间件
	if deps.Metrics != nil {
		r.Use(deps.Metrics.HTTPMiddleware())
		r.GET("/metrics/prometheus", deps.Metrics.Handler())
	}

	if deps.MemMonitor != nil {
		r.GET("/metrics", deps.MemMonitor.MetricsEndpoint())
	}

	analysisHandler := handlers.NewAnalysisHandler(deps.Analyses, logger, cfg.Server.UploadDir)
	if deps.Queue != nil {
		analysisHandler.SetQueue(deps.Queue)
	}
	installedHandler := handlers.NewInstalledHandler(deps.Installed, deps.Provider, logger)

	// 健康检查（无需认证）
	r.GET("/api/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"version": "1.0.0",
		}
		if deps.MemMonitor != nil {
			body["memory"] = deps.MemMonitor.GetStats()
		}
		c.JSON(200, body)
	})

	auth := middleware.TokenAuth(cfg.Server.APIToken)

	if deps.Hub != nil {
		r.GET("/ws/analyses", auth, deps.Hub.HandleWebSocket)
	}

	v1 := r.Group("/api", auth)
	{
		v1.GET("/stats", analysisHandler.GetStats)

		// 分析
		v1.POST("/analyses", analysisHandler.CreateAnalysis)
		v1.GET("/analyses", analysisHandler.ListAnalyses)
		v1.GET("/analyses/:id", analysisHandler.GetAnalysis)
		v1.GET("/analyses/:id/report", analysisHandler.ExportReport)
		v1.DELETE("/analyses/:id", analysisHandler.DeleteAnalysis)

		// 已安装快照
		v1.PUT("/installed", installedHandler.ReplaceInstalled)
		v1.GET("/installed", installedHandler.ListInstalled)
		v1.GET("/installed/:package", installedHandler.GetInstalled)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(startTime).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
