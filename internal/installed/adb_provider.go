package installed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/apk-analysis/apk-intake-go/internal/adb"
	"github.com/apk-analysis/apk-intake-go/internal/apkparser"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// DeviceClient ADBProvider 需要的设备操作
type DeviceClient interface {
	GetPackages(ctx context.Context) ([]string, error)
	DumpPackage(ctx context.Context, packageName string) (*adb.PackageDump, error)
	PackagePaths(ctx context.Context, packageName string) ([]string, error)
	Pull(ctx context.Context, remotePath, localPath string) error
}

const signatureCacheSize = 512

// ADBProvider 通过 adb 查询已连接设备
type ADBProvider struct {
	client   DeviceClient
	cacheDir string
	logger   *logrus.Logger

	// 包名@版本号 -> 证书指纹，避免重复拉取 APK
	signatures *lru.Cache[string, string]
	// certHash 计算本地 APK 的证书指纹
	certHash func(path string) (string, error)
}

func NewADBProvider(client DeviceClient, cacheDir string, logger *logrus.Logger) *ADBProvider {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "apk-intake", "installed")
	}
	// 容量为正数时 New 不会失败
	signatures, _ := lru.New[string, string](signatureCacheSize)
	return &ADBProvider{
		client:     client,
		cacheDir:   cacheDir,
		logger:     logger,
		signatures: signatures,
		certHash:   apkparser.CertificateHash,
	}
}

func (p *ADBProvider) Lookup(ctx context.Context, packageName string) (*domain.InstalledAppInfo, error) {
	dump, err := p.client.DumpPackage(ctx, packageName)
	if errors.Is(err, adb.ErrPackageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info := &domain.InstalledAppInfo{
		PackageName: dump.PackageName,
		Label:       dump.PackageName,
		VersionCode: dump.VersionCode,
		VersionName: dump.VersionName,
		MinSdk:      dump.MinSdk,
		TargetSdk:   dump.TargetSdk,
		IsSystemApp: dump.IsSystem,
		IsArchived:  dump.IsArchived,
	}

	// 归档的应用没有 APK 可拉取
	if !dump.IsArchived {
		info.SignatureHash = p.signature(ctx, dump)
	}
	return info, nil
}

// signature 拉取主 APK 计算证书指纹，失败时返回空串（签名比对结果为 UNKNOWN_ERROR）
func (p *ADBProvider) signature(ctx context.Context, dump *adb.PackageDump) string {
	key := fmt.Sprintf("%s@%d", dump.PackageName, dump.VersionCode)
	if v, ok := p.signatures.Get(key); ok {
		return v
	}

	log := p.logger.WithField("package", dump.PackageName)

	paths, err := p.client.PackagePaths(ctx, dump.PackageName)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve installed apk path")
		return ""
	}

	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		log.WithError(err).Warn("Failed to create cache dir")
		return ""
	}
	local := filepath.Join(p.cacheDir, uuid.NewString()+".apk")
	defer os.Remove(local)

	if err := p.client.Pull(ctx, paths[0], local); err != nil {
		log.WithError(err).Warn("Failed to pull installed apk")
		return ""
	}

	hash, err := p.certHash(local)
	if err != nil {
		log.WithError(err).Warn("Failed to read installed signing certificate")
		return ""
	}

	p.signatures.Add(key, hash)
	return hash
}

// Snapshot 读取设备上所有包的信息，concurrency 限制同时进行的 dumpsys 数
func (p *ADBProvider) Snapshot(ctx context.Context, concurrency int) ([]*domain.InstalledPackage, error) {
	names, err := p.client.GetPackages(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	packages := make([]*domain.InstalledPackage, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range names {
		g.Go(func() error {
			info, err := p.Lookup(gctx, name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.WithError(err).WithField("package", name).Warn("Skipping package in snapshot")
				return nil
			}
			if info != nil {
				packages[i] = FromAppInfo(info)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*domain.InstalledPackage, 0, len(packages))
	for _, pkg := range packages {
		if pkg != nil {
			out = append(out, pkg)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"listed":   len(names),
		"captured": len(out),
	}).Info("Installed package snapshot captured")
	return out, nil
}
