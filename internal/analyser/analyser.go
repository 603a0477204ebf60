// Package analyser 按容器格式把数据来源展开为可安装实体。
package analyser

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/apkparser"
	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// Request 单个数据来源的分析请求
type Request struct {
	Config  domain.AnalysisConfig
	Profile device.Profile
	File    *datasource.File
	Type    domain.DataType
	Extra   domain.AnalyseExtra
}

// CacheDir 临时提取目录
func (r *Request) CacheDir() string {
	if r.Extra.CacheDirectory != "" {
		return r.Extra.CacheDirectory
	}
	return filepath.Join(os.TempDir(), "apk-intake")
}

// Strategy 一种容器格式的展开逻辑，zr 为容器的 zip 视图（单 APK 时为 nil）
type Strategy interface {
	Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error)
}

// Analyser 统一的容器分析入口
type Analyser struct {
	strategies map[domain.DataType]Strategy
	logger     *logrus.Logger
}

// NewAnalyser 创建分析器，concurrency 限制多 APK 压缩包内的并行解析数
func NewAnalyser(parser *apkparser.Parser, concurrency int, logger *logrus.Logger) *Analyser {
	if concurrency <= 0 {
		concurrency = 4
	}

	single := &singleAPKStrategy{parser: parser}
	multi := &multiAPKZipStrategy{parser: parser, concurrency: concurrency, logger: logger}
	module := &moduleStrategy{}

	return &Analyser{
		strategies: map[domain.DataType]Strategy{
			domain.DataTypeAPK:            single,
			domain.DataTypeAPKS:           &apksStrategy{parser: parser, logger: logger},
			domain.DataTypeAPKM:           &apkmStrategy{parser: parser, logger: logger},
			domain.DataTypeXAPK:           &xapkStrategy{parser: parser, logger: logger},
			domain.DataTypeMultiAPKZip:    multi,
			domain.DataTypeModuleZip:      module,
			domain.DataTypeMixedModuleAPK: &mixedStrategy{module: module, apps: single, logger: logger},
			domain.DataTypeMixedModuleZip: &mixedStrategy{module: module, apps: multi, logger: logger},
		},
		logger: logger,
	}
}

// Analyse 展开一个已识别格式的本地文件。
// 嵌套条目的失败只会让该条目缺席；整体失败返回错误，由调用方记录并视为零实体。
func (a *Analyser) Analyse(ctx context.Context, cfg domain.AnalysisConfig, profile device.Profile, file *datasource.File, dataType domain.DataType, extra domain.AnalyseExtra) (entities []domain.AppEntity, err error) {
	strategy, ok := a.strategies[dataType]
	if !ok {
		return nil, fmt.Errorf("unsupported container type %q", dataType)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while analysing %s: %v\n%s", file.Path, r, debug.Stack())
			entities = nil
		}
	}()

	startTime := time.Now()
	req := &Request{Config: cfg, Profile: profile, File: file, Type: dataType, Extra: extra}

	var zr *zip.Reader
	if dataType != domain.DataTypeAPK {
		rc, err := zip.OpenReader(file.Path)
		if err != nil {
			return nil, fmt.Errorf("open container %s: %w", file.Path, err)
		}
		defer rc.Close()
		zr = &rc.Reader
	}

	entities, err = strategy.Analyse(ctx, req, zr)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"path":        file.Path,
		"type":        dataType,
		"entities":    len(entities),
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Debug("Container analysed")

	return entities, nil
}
