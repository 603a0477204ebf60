// Package pipeline 把检测、容器分析、预处理和选择策略串成一次完整的分析调用。
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/preprocess"
	"github.com/apk-analysis/apk-intake-go/internal/selection"
)

// Detector 容器格式识别
type Detector interface {
	Detect(ds datasource.DataSource, extra domain.AnalyseExtra) domain.DataType
}

// ContainerAnalyser 按格式展开实体
type ContainerAnalyser interface {
	Analyse(ctx context.Context, cfg domain.AnalysisConfig, profile device.Profile, file *datasource.File, dataType domain.DataType, extra domain.AnalyseExtra) ([]domain.AppEntity, error)
}

// Observer 分析过程的指标回调
type Observer interface {
	SourceAnalysed(dataType domain.DataType, entities int, duration time.Duration, err error)
	SessionCompleted(mode domain.SessionMode, packages int, duration time.Duration)
}

// Analyser 分析入口
type Analyser struct {
	detector     Detector
	analyser     ContainerAnalyser
	preprocessor *preprocess.Preprocessor
	concurrency  int
	observer     Observer
	logger       *logrus.Logger
}

// NewAnalyser 创建分析入口，concurrency 限制同时分析的数据来源数
func NewAnalyser(detector Detector, analyser ContainerAnalyser, preprocessor *preprocess.Preprocessor, concurrency int, logger *logrus.Logger) *Analyser {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Analyser{
		detector:     detector,
		analyser:     analyser,
		preprocessor: preprocessor,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// SetObserver 设置指标回调
func (a *Analyser) SetObserver(o Observer) {
	a.observer = o
}

// Analyse 分析一组数据来源，结果按包名首次出现的顺序返回。
// 单个来源失败只会让它不贡献实体；只有调用被取消时才返回错误，此时附带已构建的结果。
func (a *Analyser) Analyse(ctx context.Context, cfg domain.AnalysisConfig, profile device.Profile, sources []datasource.DataSource, extra domain.AnalyseExtra) ([]domain.PackageAnalysisResult, error) {
	startTime := time.Now()
	if extra.SessionID == "" {
		extra.SessionID = uuid.NewString()
	}
	extra.ModuleFlashEnabled = cfg.ModuleFlashEnabled
	if extra.CacheDirectory == "" {
		extra.CacheDirectory = filepath.Join(os.TempDir(), "apk-intake", extra.SessionID)
	}

	log := a.logger.WithFields(logrus.Fields{
		"session_id": extra.SessionID,
		"sources":    len(sources),
	})
	log.Info("Starting analysis")

	perSource := make([][]domain.AppEntity, len(sources))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, ds := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			perSource[i] = a.analyseSource(ctx, cfg, profile, ds, extra)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entities []domain.AppEntity
	for _, list := range perSource {
		entities = append(entities, list...)
	}
	entities = fixup(entities, log)

	groups, err := a.preprocessor.Process(ctx, entities)
	if err != nil {
		return nil, err
	}
	session := preprocess.DetermineSessionType(groups)

	results := make([]domain.PackageAnalysisResult, 0, len(groups))
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := domain.PackageAnalysisResult{
			PackageName:      group.PackageName,
			SessionMode:      session.Mode,
			ContainerType:    session.ContainerType,
			Entities:         selection.Select(group.Entities, session.ContainerType, profile, cfg.SplitChooseAll),
			InstalledAppInfo: group.Installed,
			IsFromSingleFile: session.IsFromSingleFile,
		}
		base := result.SelectedBase()
		result.SignatureMatchStatus = preprocess.CheckSignature(base, group.Installed)
		result.VersionRelation = domain.RelationToInstalled(base, group.Installed)
		results = append(results, result)
	}

	if a.observer != nil {
		a.observer.SessionCompleted(session.Mode, len(results), time.Since(startTime))
	}
	log.WithFields(logrus.Fields{
		"packages":       len(results),
		"entities":       len(entities),
		"session_mode":   session.Mode,
		"container_type": session.ContainerType,
		"duration_ms":    time.Since(startTime).Milliseconds(),
	}).Info("Analysis completed")

	return results, nil
}

// analyseSource 单个来源：落盘、识别、展开。任何失败都记录后返回空
func (a *Analyser) analyseSource(ctx context.Context, cfg domain.AnalysisConfig, profile device.Profile, ds datasource.DataSource, extra domain.AnalyseExtra) []domain.AppEntity {
	startTime := time.Now()
	log := a.logger.WithFields(logrus.Fields{
		"session_id": extra.SessionID,
		"source":     ds.String(),
	})

	dataType := domain.DataTypeNone
	var (
		entities []domain.AppEntity
		err      error
	)
	defer func() {
		if a.observer != nil {
			a.observer.SourceAnalysed(dataType, len(entities), time.Since(startTime), err)
		}
	}()

	file, err := datasource.Materialize(ctx, ds, extra.CacheDirectory)
	if err != nil {
		log.WithError(err).Warn("Failed to cache data source")
		return nil
	}

	dataType = a.detector.Detect(file, extra)
	if !dataType.IsKnown() {
		log.Info("Unrecognised data source")
		return nil
	}

	entities, err = a.analyser.Analyse(ctx, cfg, profile, file, dataType, extra)
	if err != nil {
		log.WithError(err).WithField("type", dataType).Warn("Failed to analyse data source")
		entities = nil
		return nil
	}
	return entities
}
