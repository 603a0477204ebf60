package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/adb"
	"github.com/apk-analysis/apk-intake-go/internal/api"
	"github.com/apk-analysis/apk-intake-go/internal/api/handlers"
	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
	"github.com/apk-analysis/apk-intake-go/internal/middleware"
	"github.com/apk-analysis/apk-intake-go/internal/pipeline"
	"github.com/apk-analysis/apk-intake-go/internal/queue"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
	"github.com/apk-analysis/apk-intake-go/internal/service"
	"github.com/apk-analysis/apk-intake-go/internal/watcher"
	"github.com/apk-analysis/apk-intake-go/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	fmt.Printf("APK Intake Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting APK intake service %s", Version)
	logger.Infof("Config loaded from: %s", *configPath)

	// 3. 初始化数据库
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.WithField("type", cfg.Database.Type).Info("Database connected successfully")

	analysisRepo := repository.NewAnalysisRepository(db, logger)
	installedRepo := repository.NewInstalledPackageRepository(db, logger)

	// 4. 指标
	promMetrics := middleware.NewPrometheusMetrics(logger, cfg.Metrics.Namespace)
	memMonitor := middleware.NewMemoryMonitor(logger, 10*time.Second, promMetrics.UpdateMemoryStats)
	memMonitor.Start()
	defer memMonitor.Stop()

	// 5. 设备与已安装信息
	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	var adbClient *adb.Client
	if cfg.Device.Source == "adb" || cfg.Installed.Provider == "adb" {
		adbClient = adb.NewClient(cfg.ADB.Target, time.Duration(cfg.ADB.Timeout)*time.Second, logger)
		if err := adbClient.Connect(startupCtx); err != nil {
			logger.WithError(err).Warn("Failed to connect adb target")
		}
	}

	deps := installed.Deps{Repo: installedRepo, CacheDir: cfg.Analysis.CacheDir, Logger: logger}
	var props device.PropReader
	if adbClient != nil {
		deps.Device = adbClient
		props = adbClient
	}
	provider, err := installed.NewProvider(cfg.Installed, deps)
	if err != nil {
		logger.Fatalf("Failed to init installed provider: %v", err)
	}

	profile, err := pipeline.ResolveProfile(startupCtx, cfg, props, logger)
	startupCancel()
	if err != nil {
		logger.WithError(err).Warn("Failed to read device profile, falling back to static profile")
		profile = cfg.StaticProfile()
	}
	logger.WithFields(logrus.Fields{
		"source":    cfg.Device.Source,
		"abis":      profile.ABIs,
		"locales":   profile.Locales,
		"installed": cfg.Installed.Provider,
	}).Info("Device profile ready")

	// 6. 分析流水线与服务
	analyser := pipeline.Build(cfg, provider, logger)
	analyser.SetObserver(promMetrics)

	hub := handlers.NewResultsHub(logger)
	hub.Start()
	defer hub.Stop()

	analysisService := service.NewAnalysisService(analyser, analysisRepo, service.Options{
		Config:   cfg.AnalysisDefaults(),
		Profile:  profile,
		CacheDir: cfg.Analysis.CacheDir,
		Notifier: hub,
		Metrics:  promMetrics,
	}, logger)

	// 7. Worker Pool（收件目录与队列的任务都在这里执行）
	workerPool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, createJobHandler(analysisService, logger), logger)
	workerPool.SetStatsReporter(promMetrics)
	workerPool.Start(context.Background())
	defer workerPool.Stop()
	logger.Infof("Worker pool started with %d workers", cfg.Worker.Concurrency)

	// 8. 消息队列
	var queueStatus handlers.QueueStatus
	if cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQ, cfg.Worker.Concurrency, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()
		logger.WithField("queue", cfg.RabbitMQ.Queue).Info("RabbitMQ connected successfully")

		consumer := queue.NewConsumer(mq, createMessageHandler(workerPool, logger), cfg.Worker.Concurrency, logger)
		consumer.SetRecorder(promMetrics)
		if err := consumer.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()
		queueStatus = consumer
	} else {
		logger.Info("RabbitMQ disabled")
	}

	// 9. 收件目录
	if cfg.Watcher.Enabled {
		fileWatcher, err := watcher.NewFileWatcher(cfg.Watcher.Dir, cfg.Watcher.Pattern, createFileHandler(workerPool, logger), logger, watcher.Options{})
		if err != nil {
			logger.Fatalf("Failed to create file watcher: %v", err)
		}
		defer fileWatcher.Stop()

		if err := fileWatcher.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start file watcher: %v", err)
		}
		logger.Infof("File watcher started for directory: %s", fileWatcher.GetWatchDir())
	}

	// 10. HTTP Server
	router := api.SetupRouter(cfg, logger, api.Dependencies{
		Analyses:   analysisService,
		Installed:  installedRepo,
		Provider:   provider,
		Hub:        hub,
		MemMonitor: memMonitor,
		Metrics:    promMetrics,
		Queue:      queueStatus,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // 支持大文件上传
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 11. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Server stopped")
}

// createJobHandler Worker 执行一次分析
func createJobHandler(analysisService service.AnalysisService, logger *logrus.Logger) worker.Handler {
	return func(ctx context.Context, job *worker.Job) error {
		outcome, err := analysisService.Analyse(ctx, service.AnalyseRequest{
			Paths:          job.Paths,
			SessionID:      job.ID,
			SplitChooseAll: job.SplitChooseAll,
		})
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"origin":   job.Origin,
			"packages": outcome.Record.PackageCount,
		}).Info("Job finished")
		return nil
	}
}

// createFileHandler 收件目录中的新文件提交到 Worker Pool，不等待结果
func createFileHandler(workerPool *worker.Pool, logger *logrus.Logger) watcher.FileHandler {
	return func(ctx context.Context, filePath string) error {
		job := &worker.Job{Paths: []string{filePath}, Origin: "watcher"}
		if err := workerPool.Submit(job); err != nil {
			logger.WithError(err).WithField("file", filePath).Warn("Failed to submit watched file")
			return err
		}
		return nil
	}
}

// createMessageHandler 队列消息提交到 Worker Pool 并等待完成，以便按结果 ack
func createMessageHandler(workerPool *worker.Pool, logger *logrus.Logger) queue.AnalysisHandler {
	return func(ctx context.Context, msg *queue.AnalysisMessage) error {
		logger.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"paths":      len(msg.Paths),
		}).Info("Received analysis request from RabbitMQ")

		sessionID := msg.SessionID
		if sessionID == "" {
			sessionID = msg.ID
		}
		return workerPool.SubmitAndWait(ctx, &worker.Job{
			ID:             sessionID,
			Paths:          msg.Paths,
			Origin:         "queue",
			SplitChooseAll: msg.SplitChooseAll,
		})
	}
}
