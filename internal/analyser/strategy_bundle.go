package analyser

import (
	"archive/zip"
	"context"
	"errors"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/apkparser"
	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

var errNoBase = errors.New("bundle has no base apk")

// apksStrategy bundletool 导出的 APKS：base.apk / base-master.apk 加若干分包
type apksStrategy struct {
	parser *apkparser.Parser
	logger *logrus.Logger
}

func (s *apksStrategy) Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var baseName string
	for _, f := range zr.File {
		name := strings.ToLower(path.Base(f.Name))
		if name == "base.apk" || name == "base-master.apk" {
			baseName = f.Name
			break
		}
	}
	if baseName == "" {
		return nil, errNoBase
	}

	parsed, err := s.parser.ParseZipEntry(ctx, req.File, baseName, req.CacheDir(), req.Type, req.Profile)
	if err != nil {
		return nil, err
	}
	base, ok := parsed.(*domain.BaseEntity)
	if !ok {
		removeCached(parsed)
		return nil, errNoBase
	}

	entities := []domain.AppEntity{base}
	for _, f := range zr.File {
		if f.Name == baseName || f.FileInfo().IsDir() || !hasExt(f.Name, ".apk") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(path.Base(f.Name)), "base-master") {
			continue
		}

		info := domain.EntityInfo{
			Package:       base.Package,
			Source:        datasource.NewZipEntryInFile(f.Name, req.File),
			TargetSdk:     base.TargetSdk,
			MinSdk:        base.MinSdk,
			ContainerType: req.Type,
		}
		entities = append(entities, newSplit(info, strings.TrimPrefix(stem(f.Name), "split_")))
	}
	return entities, nil
}

// apkmInfo APKMirror 的 info.json
type apkmInfo struct {
	PackageName    string     `json:"pname"`
	VersionCode    flexString `json:"versioncode"`
	ReleaseVersion string     `json:"release_version"`
	AppName        string     `json:"app_name"`
	APKTitle       string     `json:"apk_title"`
	ReleaseTitle   string     `json:"release_title"`
	MinAPI         flexString `json:"min_api"`
}

func (i *apkmInfo) label() string {
	for _, v := range []string{i.AppName, i.APKTitle, i.ReleaseTitle} {
		if v != "" {
			return v
		}
	}
	return i.PackageName
}

// apkmStrategy APKMirror 的 APKM
type apkmStrategy struct {
	parser *apkparser.Parser
	logger *logrus.Logger
}

func (s *apkmStrategy) Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var info apkmInfo
	if err := readJSONEntry(zr, "info.json", &info); err != nil {
		return nil, err
	}

	common := domain.EntityInfo{
		Package:       info.PackageName,
		MinSdk:        string(info.MinAPI),
		ContainerType: req.Type,
	}

	var entities []domain.AppEntity
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		e := common
		e.Source = datasource.NewZipEntryInFile(f.Name, req.File)

		switch {
		case strings.EqualFold(f.Name, "base.apk"):
			base := &domain.BaseEntity{
				EntityInfo:  e,
				VersionCode: info.VersionCode.Int64(),
				VersionName: info.ReleaseVersion,
				Label:       info.label(),
			}
			if hasEntry(zr, "icon.png") {
				base.Icon = "icon.png"
			}
			s.enrich(ctx, req, base)
			entities = append(entities, base)
		case hasExt(f.Name, ".apk"):
			entities = append(entities, newSplit(e, strings.TrimPrefix(stem(f.Name), "split_")))
		case hasExt(f.Name, ".dm"):
			entities = append(entities, &domain.DexMetadataEntity{EntityInfo: e, DMName: stem(f.Name)})
		}
	}
	return entities, nil
}

func (s *apkmStrategy) enrich(ctx context.Context, req *Request, base *domain.BaseEntity) {
	enrichBase(ctx, s.parser, s.logger, req, base)
}

// xapkManifest APKPure 的 manifest.json
type xapkManifest struct {
	PackageName string     `json:"package_name"`
	VersionCode flexString `json:"version_code"`
	VersionName string     `json:"version_name"`
	Name        string     `json:"name"`
	MinSDK      flexString `json:"min_sdk_version"`
	TargetSDK   flexString `json:"target_sdk_version"`
	Permissions []string   `json:"permissions"`
	SplitAPKs   []struct {
		File string `json:"file"`
		ID   string `json:"id"`
	} `json:"split_apks"`
}

// xapkStrategy APKPure 的 XAPK
type xapkStrategy struct {
	parser *apkparser.Parser
	logger *logrus.Logger
}

func (s *xapkStrategy) Analyse(ctx context.Context, req *Request, zr *zip.Reader) ([]domain.AppEntity, error) {
	var manifest xapkManifest
	if err := readJSONEntry(zr, "manifest.json", &manifest); err != nil {
		return nil, err
	}

	type part struct{ file, id string }
	var parts []part
	for _, sp := range manifest.SplitAPKs {
		parts = append(parts, part{file: sp.File, id: sp.ID})
	}
	if len(parts) == 0 {
		// 只有 expansions 的 XAPK：根目录下的 <包名>.apk 或唯一的 APK 即主包
		if base := xapkFallbackBase(zr, manifest.PackageName); base != "" {
			parts = append(parts, part{file: base, id: "base"})
		}
	}

	common := domain.EntityInfo{
		Package:       manifest.PackageName,
		MinSdk:        string(manifest.MinSDK),
		TargetSdk:     string(manifest.TargetSDK),
		ContainerType: req.Type,
	}

	var entities []domain.AppEntity
	for _, p := range parts {
		if !hasEntry(zr, p.file) {
			s.logger.WithFields(logrus.Fields{"file": p.file, "path": req.File.Path}).Warn("XAPK manifest references a missing entry")
			continue
		}
		e := common
		e.Source = datasource.NewZipEntryInFile(p.file, req.File)

		switch {
		case hasExt(p.file, ".dm"):
			entities = append(entities, &domain.DexMetadataEntity{EntityInfo: e, DMName: stem(p.file)})
		case p.id == "base":
			base := &domain.BaseEntity{
				EntityInfo:  e,
				VersionCode: manifest.VersionCode.Int64(),
				VersionName: manifest.VersionName,
				Label:       manifest.Name,
				Permissions: manifest.Permissions,
			}
			if hasEntry(zr, "icon.png") {
				base.Icon = "icon.png"
			}
			enrichBase(ctx, s.parser, s.logger, req, base)
			entities = append(entities, base)
		case hasExt(p.file, ".apk"):
			name := p.id
			if name == "" {
				name = stem(p.file)
			}
			entities = append(entities, newSplit(e, name))
		}
	}
	return entities, nil
}

func xapkFallbackBase(zr *zip.Reader, packageName string) string {
	var rootAPKs []string
	for _, f := range zr.File {
		if strings.Contains(f.Name, "/") || !hasExt(f.Name, ".apk") {
			continue
		}
		if f.Name == packageName+".apk" {
			return f.Name
		}
		rootAPKs = append(rootAPKs, f.Name)
	}
	if len(rootAPKs) == 1 {
		return rootAPKs[0]
	}
	return ""
}

// enrichBase 尝试完整解析描述文件声明的主包，补全签名、ABI 和权限。
// 失败时保留描述文件中的信息。
func enrichBase(ctx context.Context, parser *apkparser.Parser, logger *logrus.Logger, req *Request, base *domain.BaseEntity) {
	entry, ok := base.Source.(*datasource.ZipEntryInFile)
	if !ok {
		return
	}

	parsed, err := parser.ParseZipEntry(ctx, req.File, entry.Name, req.CacheDir(), req.Type, req.Profile)
	if err != nil {
		logger.WithError(err).WithField("entry", entry.Name).Debug("Base apk not parsable, using descriptor metadata")
		return
	}
	defer removeCached(parsed)

	full, ok := parsed.(*domain.BaseEntity)
	if !ok {
		return
	}
	if full.Package != base.Package && base.Package != "" {
		logger.WithFields(logrus.Fields{
			"descriptor": base.Package,
			"manifest":   full.Package,
		}).Warn("Descriptor package name differs from manifest")
		return
	}

	base.Package = full.Package
	base.Architecture = full.Architecture
	base.SignatureHash = full.SignatureHash
	base.SharedUserID = full.SharedUserID
	if base.TargetSdk == "" {
		base.TargetSdk = full.TargetSdk
	}
	if base.MinSdk == "" {
		base.MinSdk = full.MinSdk
	}
	if len(full.Permissions) > 0 {
		base.Permissions = full.Permissions
	}
	if base.VersionCode == 0 {
		base.VersionCode = full.VersionCode
		base.VersionName = full.VersionName
	}
}
