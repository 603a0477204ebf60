package analyser

import (
	"archive/zip"
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/apk-analysis/apk-intake-go/internal/apkparser"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// singleAPKStrategy 单个 APK 或单独的 .dm 文件
type singleAPKStrategy struct {
	parser *apkparser.Parser
}

func (s *singleAPKStrategy) Analyse(ctx context.Context, req *Request, _ *zip.Reader) ([]domain.AppEntity, error) {
	if hasExt(req.File.Path, ".dm") {
		// 包名由调用方按同批次的主 APK 补全
		return []domain.AppEntity{&domain.DexMetadataEntity{
			EntityInfo: domain.EntityInfo{Source: req.File, ContainerType: req.Type},
			DMName:     stem(req.File.Path),
		}}, nil
	}

	entity, err := s.parser.ParseFile(ctx, req.File, req.Type, req.Profile)
	if err != nil {
		return nil, err
	}
	return []domain.AppEntity{entity}, nil
}

// multiAPKZipStrategy 若干互不相关的 APK 打包在一个 zip 中
type multiAPKZipStrategy struct {
	parser      *apkparser.Parser
	concurrency int
	logger      *logrus.Logger
}

func (s *multiAPKZipStrategy) Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && hasExt(f.Name, ".apk") {
			names = append(names, f.Name)
		}
	}

	results := make([]domain.AppEntity, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, name := range names {
		g.Go(func() error {
			entity, err := s.parser.ParseZipEntry(gctx, req.File, name, req.CacheDir(), req.Type, req.Profile)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WithError(err).WithField("entry", name).Warn("Skipping unparsable apk entry")
				return nil
			}
			if base, ok := entity.(*domain.BaseEntity); ok && base.Label == "" {
				base.Label = stem(name)
			}
			results[i] = entity
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	entities := make([]domain.AppEntity, 0, len(results))
	for _, e := range results {
		if e != nil {
			entities = append(entities, e)
		}
	}
	return entities, nil
}
