package installed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// snapshotEntry 快照文件中的一项，YAML 和 JSON 均可
type snapshotEntry struct {
	PackageName   string `yaml:"package_name"`
	Label         string `yaml:"label"`
	VersionCode   int64  `yaml:"version_code"`
	VersionName   string `yaml:"version_name"`
	MinSdk        int    `yaml:"min_sdk"`
	TargetSdk     int    `yaml:"target_sdk"`
	SignatureHash string `yaml:"signature_hash"`
	IsSystemApp   bool   `yaml:"is_system_app"`
	IsArchived    bool   `yaml:"is_archived"`
}

// LoadSnapshotFile 读取已安装包快照文件（顶层为列表）
func LoadSnapshotFile(path string) ([]*domain.InstalledPackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []snapshotEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	packages := make([]*domain.InstalledPackage, 0, len(entries))
	for i, e := range entries {
		if e.PackageName == "" {
			return nil, fmt.Errorf("snapshot %s: entry %d has no package_name", path, i)
		}
		packages = append(packages, FromAppInfo(&domain.InstalledAppInfo{
			PackageName:   e.PackageName,
			Label:         e.Label,
			VersionCode:   e.VersionCode,
			VersionName:   e.VersionName,
			MinSdk:        e.MinSdk,
			TargetSdk:     e.TargetSdk,
			SignatureHash: e.SignatureHash,
			IsSystemApp:   e.IsSystemApp,
			IsArchived:    e.IsArchived,
		}))
	}
	return packages, nil
}

// SnapshotProvider 以内存中的快照作为已安装信息来源
type SnapshotProvider struct {
	packages map[string]*domain.InstalledPackage
}

// NewSnapshotProvider 同名包以后出现的为准
func NewSnapshotProvider(packages []*domain.InstalledPackage) *SnapshotProvider {
	m := make(map[string]*domain.InstalledPackage, len(packages))
	for _, pkg := range packages {
		m[pkg.PackageName] = pkg
	}
	return &SnapshotProvider{packages: m}
}

func (p *SnapshotProvider) Lookup(_ context.Context, packageName string) (*domain.InstalledAppInfo, error) {
	pkg, ok := p.packages[packageName]
	if !ok {
		return nil, nil
	}
	return pkg.ToAppInfo(), nil
}
