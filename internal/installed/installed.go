// Package installed 提供设备上已安装版本的信息来源。
package installed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
)

// ErrNotInstalled 设备上没有安装该包
var ErrNotInstalled = errors.New("package not installed")

// Provider 已安装信息查询，未安装时返回 nil, nil
type Provider interface {
	Lookup(ctx context.Context, packageName string) (*domain.InstalledAppInfo, error)
}

// Require 和 Lookup 相同，但未安装时返回 ErrNotInstalled
func Require(ctx context.Context, p Provider, packageName string) (*domain.InstalledAppInfo, error) {
	info, err := p.Lookup(ctx, packageName)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, packageName)
	}
	return info, nil
}

// None 不查询，所有包都视为未安装
type None struct{}

func (None) Lookup(context.Context, string) (*domain.InstalledAppInfo, error) {
	return nil, nil
}

// RepositoryProvider 从数据库中的快照查询
type RepositoryProvider struct {
	repo repository.InstalledPackageRepository
}

func NewRepositoryProvider(repo repository.InstalledPackageRepository) *RepositoryProvider {
	return &RepositoryProvider{repo: repo}
}

func (p *RepositoryProvider) Lookup(ctx context.Context, packageName string) (*domain.InstalledAppInfo, error) {
	pkg, err := p.repo.Find(ctx, packageName)
	if err != nil || pkg == nil {
		return nil, err
	}
	return pkg.ToAppInfo(), nil
}

// Deps 构造 Provider 可能用到的依赖
type Deps struct {
	Device   DeviceClient
	Repo     repository.InstalledPackageRepository
	CacheDir string
	Logger   *logrus.Logger
}

// NewProvider 按配置选择信息来源
func NewProvider(cfg config.InstalledConfig, deps Deps) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return None{}, nil
	case "adb":
		if deps.Device == nil {
			return nil, errors.New("installed provider adb requires a device client")
		}
		return NewADBProvider(deps.Device, deps.CacheDir, deps.Logger), nil
	case "database":
		if deps.Repo == nil {
			return nil, errors.New("installed provider database requires a repository")
		}
		return NewRepositoryProvider(deps.Repo), nil
	default:
		return nil, fmt.Errorf("unknown installed provider %q", cfg.Provider)
	}
}

// FromAppInfo 转换为可持久化的快照
func FromAppInfo(info *domain.InstalledAppInfo) *domain.InstalledPackage {
	return &domain.InstalledPackage{
		PackageName:   info.PackageName,
		Label:         info.Label,
		VersionCode:   info.VersionCode,
		VersionName:   info.VersionName,
		MinSdk:        info.MinSdk,
		TargetSdk:     info.TargetSdk,
		SignatureHash: info.SignatureHash,
		IsSystemApp:   info.IsSystemApp,
		IsArchived:    info.IsArchived,
		UpdatedAt:     time.Now().UTC(),
	}
}
