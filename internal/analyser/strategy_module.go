package analyser

import (
	"archive/zip"
	"context"
	"errors"
	"strings"

	"github.com/magiconair/properties"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

var modulePropPaths = []string{"module.prop", "common/module.prop"}

// moduleStrategy Magisk/KernelSU 模块包
type moduleStrategy struct{}

func (s *moduleStrategy) Analyse(_ context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var data []byte
	for _, name := range modulePropPaths {
		b, err := readZipEntry(zr, name)
		if err == nil {
			data = b
			break
		}
	}
	if data == nil {
		return nil, nil
	}

	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(props.GetString("id", ""))
	name := strings.TrimSpace(props.GetString("name", ""))
	if id == "" || name == "" {
		return nil, nil
	}

	return []domain.AppEntity{&domain.ModuleEntity{
		EntityInfo: domain.EntityInfo{
			Package:       id,
			Source:        req.File,
			ContainerType: req.Type,
		},
		ID:          id,
		ModuleName:  name,
		Version:     strings.TrimSpace(props.GetString("version", "")),
		VersionCode: flexString(strings.TrimSpace(props.GetString("versionCode", ""))).Int64(),
		Author:      strings.TrimSpace(props.GetString("author", "")),
		Description: strings.TrimSpace(props.GetString("description", "")),
	}}, nil
}

// mixedStrategy 同时包含模块和应用的容器，两部分并行展开后合并。
// 任一部分失败只丢弃该部分，两部分都失败才返回错误
type mixedStrategy struct {
	module Strategy
	apps   Strategy
	logger *logrus.Logger
}

func (s *mixedStrategy) Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var (
		modules, apps     []domain.AppEntity
		moduleErr, appErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		modules, moduleErr = s.module.Analyse(ctx, req, zr)
		return nil
	})
	g.Go(func() error {
		apps, appErr = s.apps.Analyse(ctx, req, zr)
		return nil
	})
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if moduleErr != nil && appErr != nil {
		return nil, errors.Join(moduleErr, appErr)
	}

	log := s.logger.WithField("path", req.File.Path)
	if moduleErr != nil {
		log.WithError(moduleErr).Warn("Module part unreadable, keeping apps")
		modules = nil
	}
	if appErr != nil {
		log.WithError(appErr).Warn("App part unreadable, keeping module")
		apps = nil
	}
	return append(modules, apps...), nil
}
