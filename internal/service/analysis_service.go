package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
)

// ErrNoSources 请求中没有任何数据来源
var ErrNoSources = errors.New("no sources to analyse")

// Pipeline 分析流水线
type Pipeline interface {
	Analyse(ctx context.Context, cfg domain.AnalysisConfig, profile device.Profile, sources []datasource.DataSource, extra domain.AnalyseExtra) ([]domain.PackageAnalysisResult, error)
}

// Notifier 分析完成后的推送（WebSocket 等）
type Notifier interface {
	NotifyAnalysis(record *domain.AnalysisRecord, views []domain.ResultView)
}

// MetricsRecorder 进行中的分析数量
type MetricsRecorder interface {
	AnalysisStarted()
	AnalysisFinished()
}

// AnalyseRequest 分析请求
type AnalyseRequest struct {
	Paths     []string
	Sources   []datasource.DataSource
	Config    *domain.AnalysisConfig
	Profile   *device.Profile
	SessionID string
	// SplitChooseAll 在生效配置上覆盖 split 全选开关
	SplitChooseAll *bool
}

// AnalysisOutcome 分析结果与对应的持久化记录
type AnalysisOutcome struct {
	Record  *domain.AnalysisRecord
	Results []domain.PackageAnalysisResult
}

// AnalysisService 分析服务接口
type AnalysisService interface {
	Analyse(ctx context.Context, req AnalyseRequest) (*AnalysisOutcome, error)
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, page, pageSize int, status string) ([]*domain.AnalysisRecord, int64, error)
	Delete(ctx context.Context, id string) error
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

// Options 服务的默认参数，Notifier 与 Metrics 可为空
type Options struct {
	Config   domain.AnalysisConfig
	Profile  device.Profile
	CacheDir string
	Notifier Notifier
	Metrics  MetricsRecorder
}

type analysisService struct {
	pipeline Pipeline
	repo     repository.AnalysisRepository
	opts     Options
	notifier Notifier
	metrics  MetricsRecorder
	logger   *logrus.Logger
}

// NewAnalysisService 创建分析服务
func NewAnalysisService(pipeline Pipeline, repo repository.AnalysisRepository, opts Options, logger *logrus.Logger) AnalysisService {
	return &analysisService{
		pipeline: pipeline,
		repo:     repo,
		opts:     opts,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

func (s *analysisService) Analyse(ctx context.Context, req AnalyseRequest) (*AnalysisOutcome, error) {
	sources := make([]datasource.DataSource, 0, len(req.Paths)+len(req.Sources))
	for _, p := range req.Paths {
		sources = append(sources, datasource.NewFile(p))
	}
	sources = append(sources, req.Sources...)
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	cfg := s.opts.Config
	if req.Config != nil {
		cfg = *req.Config
	}
	if req.SplitChooseAll != nil {
		cfg.SplitChooseAll = *req.SplitChooseAll
	}
	profile := s.opts.Profile
	if req.Profile != nil {
		profile = *req.Profile
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	cacheRoot := s.opts.CacheDir
	if cacheRoot == "" {
		cacheRoot = filepath.Join(os.TempDir(), "apk-intake")
	}
	extra := domain.AnalyseExtra{
		SessionID:      sessionID,
		CacheDirectory: filepath.Join(cacheRoot, sessionID),
	}

	if s.metrics != nil {
		s.metrics.AnalysisStarted()
		defer s.metrics.AnalysisFinished()
	}

	startTime := time.Now()
	results, analyseErr := s.pipeline.Analyse(ctx, cfg, profile, sources, extra)
	if analyseErr != nil && !errors.Is(analyseErr, context.Canceled) && !errors.Is(analyseErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("分析失败: %w", analyseErr)
	}

	record := &domain.AnalysisRecord{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		SourceCount: len(sources),
		CacheDir:    extra.CacheDirectory,
		DurationMs:  time.Since(startTime).Milliseconds(),
	}
	fillRecord(record, sources, results)
	switch {
	case analyseErr != nil:
		record.Status = domain.AnalysisStatusCancelled
	case len(results) == 0:
		record.Status = domain.AnalysisStatusEmpty
	default:
		record.Status = domain.AnalysisStatusCompleted
	}

	views := domain.NewResultViews(results)
	if data, err := json.Marshal(views); err == nil {
		record.ResultJSON = string(data)
	} else {
		s.logger.WithError(err).Warn("Failed to encode analysis result")
	}

	// 取消后仍然保存记录
	persistCtx := ctx
	if analyseErr != nil {
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := s.repo.Create(persistCtx, record); err != nil {
		return nil, fmt.Errorf("保存分析记录失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"session_id":  sessionID,
		"status":      record.Status,
		"packages":    record.PackageCount,
		"selected":    record.SelectedCount,
	}).Info("Analysis recorded")

	if s.notifier != nil {
		s.notifier.NotifyAnalysis(record, views)
	}

	outcome := &AnalysisOutcome{Record: record, Results: results}
	if analyseErr != nil {
		return outcome, analyseErr
	}
	return outcome, nil
}

func fillRecord(record *domain.AnalysisRecord, sources []datasource.DataSource, results []domain.PackageAnalysisResult) {
	names := make([]string, 0, len(sources))
	for _, ds := range sources {
		names = append(names, ds.String())
	}
	if data, err := json.Marshal(names); err == nil {
		record.SourcesJSON = string(data)
	}

	record.PackageCount = len(results)
	for _, r := range results {
		record.EntityCount += len(r.Entities)
		record.SelectedCount += len(r.SelectedEntities())
	}
	if len(results) > 0 {
		record.SessionMode = results[0].SessionMode
		record.ContainerType = results[0].ContainerType
	}
}

func (s *analysisService) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("获取分析记录失败: %w", err)
	}
	return record, nil
}

func (s *analysisService) List(ctx context.Context, page, pageSize int, status string) ([]*domain.AnalysisRecord, int64, error) {
	return s.repo.List(ctx, page, pageSize, status)
}

// Delete 删除记录及其缓存目录
func (s *analysisService) Delete(ctx context.Context, id string) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("获取分析记录失败: %w", err)
	}

	if record.CacheDir != "" {
		if err := os.RemoveAll(record.CacheDir); err != nil {
			s.logger.WithError(err).WithField("cache_dir", record.CacheDir).Warn("Failed to remove cache directory")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除分析记录失败: %w", err)
	}
	s.logger.WithField("analysis_id", id).Info("Analysis deleted")
	return nil
}

func (s *analysisService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	return s.repo.GetStatusCounts(ctx)
}
