// Package preprocess 按包名分组、去重，查询已安装版本，并推导会话类型。
package preprocess

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// InstalledInfoProvider 查询设备上已安装的版本，未安装时返回 nil
type InstalledInfoProvider interface {
	Lookup(ctx context.Context, packageName string) (*domain.InstalledAppInfo, error)
}

// ProcessedGroup 一个包名下去重后的实体
type ProcessedGroup struct {
	PackageName string
	Entities    []domain.AppEntity
	Installed   *domain.InstalledAppInfo
}

// Preprocessor 分组预处理器
type Preprocessor struct {
	installed   InstalledInfoProvider
	concurrency int
	logger      *logrus.Logger
}

// NewPreprocessor 创建预处理器，installed 可以为 nil
func NewPreprocessor(installed InstalledInfoProvider, concurrency int, logger *logrus.Logger) *Preprocessor {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Preprocessor{installed: installed, concurrency: concurrency, logger: logger}
}

// Process 分组后逐组并行去重和查询已安装信息，结果按包名首次出现的顺序返回
func (p *Preprocessor) Process(ctx context.Context, entities []domain.AppEntity) ([]ProcessedGroup, error) {
	groups := Group(entities)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range groups {
		group := &groups[i]
		g.Go(func() error {
			return p.processGroup(gctx, group)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (p *Preprocessor) processGroup(ctx context.Context, group *ProcessedGroup) error {
	var (
		wg        sync.WaitGroup
		installed *domain.InstalledAppInfo
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		installed = p.lookup(ctx, group.PackageName)
	}()

	deduped, err := Dedup(ctx, group.Entities)
	wg.Wait()
	if err != nil {
		return err
	}

	if removed := len(group.Entities) - len(deduped); removed > 0 {
		p.logger.WithFields(logrus.Fields{
			"package": group.PackageName,
			"removed": removed,
		}).Info("Removed duplicate base packages")
	}

	group.Entities = deduped
	group.Installed = installed
	return nil
}

func (p *Preprocessor) lookup(ctx context.Context, packageName string) *domain.InstalledAppInfo {
	if p.installed == nil || packageName == "" {
		return nil
	}
	info, err := p.installed.Lookup(ctx, packageName)
	if err != nil {
		p.logger.WithError(err).WithField("package", packageName).Warn("Failed to look up installed package")
		return nil
	}
	return info
}

// Group 按包名分组，保持首次出现的顺序
func Group(entities []domain.AppEntity) []ProcessedGroup {
	index := make(map[string]int)
	var groups []ProcessedGroup
	for _, e := range entities {
		i, ok := index[e.PackageName()]
		if !ok {
			i = len(groups)
			index[e.PackageName()] = i
			groups = append(groups, ProcessedGroup{PackageName: e.PackageName()})
		}
		groups[i].Entities = append(groups[i].Entities, e)
	}
	return groups
}
