// Package apkparser 解析单个 APK：清单、原生库 ABI、签名证书。
package apkparser

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/apkverifier"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/splitmeta"
)

// Parser APK 解析器
type Parser struct {
	logger *logrus.Logger
}

// NewParser 创建解析器
func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseFile 完整解析本地 APK 文件
func (p *Parser) ParseFile(ctx context.Context, file *datasource.File, containerType domain.DataType, profile device.Profile) (domain.AppEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	zr, err := zip.OpenReader(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open apk %s: %w", file.Path, err)
	}
	defer zr.Close()

	manifest, err := ReadManifest(&zr.Reader)
	if err != nil {
		return nil, fmt.Errorf("read manifest of %s: %w", file.Path, err)
	}

	arch := SelectArchitecture(NativeArchitectures(&zr.Reader), profile)

	info := domain.EntityInfo{
		Package:       manifest.PackageName,
		Source:        file,
		TargetSdk:     manifest.TargetSdk,
		MinSdk:        manifest.MinSdk,
		Architecture:  arch,
		ContainerType: containerType,
	}

	if manifest.SplitName != "" {
		meta := splitmeta.Parse(manifest.SplitName)
		return &domain.SplitEntity{
			EntityInfo:  info,
			SplitName:   manifest.SplitName,
			Type:        meta.Type,
			Filter:      meta.Filter,
			ConfigValue: meta.ConfigValue,
		}, nil
	}

	hash, err := CertificateHash(file.Path)
	if err != nil {
		p.logger.WithError(err).WithField("path", file.Path).Debug("Signing certificate unavailable")
	}

	p.logger.WithFields(logrus.Fields{
		"package_name": manifest.PackageName,
		"version_code": manifest.VersionCode,
		"arch":         arch,
		"duration_ms":  time.Since(startTime).Milliseconds(),
	}).Debug("APK parsed")

	return &domain.BaseEntity{
		EntityInfo:    info,
		SharedUserID:  manifest.SharedUserID,
		VersionCode:   manifest.VersionCode,
		VersionName:   manifest.VersionName,
		Label:         manifest.Label,
		Icon:          manifest.Icon,
		Permissions:   manifest.Permissions,
		SignatureHash: hash,
	}, nil
}

// ParseZipEntry 把容器中的 APK 条目提取到缓存目录后完整解析。
// 返回实体的数据来源是缓存文件，其回溯引用指向原条目。
func (p *Parser) ParseZipEntry(ctx context.Context, container *datasource.File, entryName, cacheDir string, containerType domain.DataType, profile device.Profile) (domain.AppEntity, error) {
	entry := datasource.NewZipEntryInFile(entryName, container)

	cached, err := Extract(ctx, entry, cacheDir)
	if err != nil {
		return nil, err
	}

	entity, err := p.ParseFile(ctx, cached, containerType, profile)
	if err != nil {
		os.Remove(cached.Path)
		return nil, err
	}
	return entity, nil
}

// Extract 把条目复制到 cacheDir，保留扩展名
func Extract(ctx context.Context, entry *datasource.ZipEntryInFile, cacheDir string) (*datasource.File, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	base := strings.TrimSuffix(filepath.Base(entry.Name), filepath.Ext(entry.Name))
	tmp, err := os.CreateTemp(cacheDir, sanitize(base)+"-*"+filepath.Ext(entry.Name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := copyWithContext(ctx, tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("extract %s: %w", entry, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	return datasource.NewCachedFile(tmp.Name(), entry), nil
}

// NativeArchitectures 从 lib/<abi>/ 目录收集 ABI，保持首次出现的顺序
func NativeArchitectures(zr *zip.Reader) []domain.Architecture {
	seen := make(map[domain.Architecture]bool)
	var archs []domain.Architecture
	for _, f := range zr.File {
		rest, ok := strings.CutPrefix(f.Name, "lib/")
		if !ok {
			continue
		}
		dir, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if a, ok := domain.ParseArchitecture(dir); ok && !seen[a] {
			seen[a] = true
			archs = append(archs, a)
		}
	}
	return archs
}

// SelectArchitecture 在 APK 提供的 ABI 中选出设备最合适的一个。
// 没有原生库返回 ArchNone；设备不支持任何一个时，ARM 设备回退到 32 位 ARM，
// x86 设备回退到 x86，仍没有则返回 ArchUnknown。
func SelectArchitecture(apkArchs []domain.Architecture, profile device.Profile) domain.Architecture {
	if len(apkArchs) == 0 {
		return domain.ArchNone
	}

	has := func(a domain.Architecture) bool {
		for _, x := range apkArchs {
			if x == a {
				return true
			}
		}
		return false
	}

	for _, a := range profile.Architectures() {
		if has(a) {
			return a
		}
	}

	switch {
	case profile.IsARM():
		for _, a := range []domain.Architecture{domain.ArchARMv7, domain.ArchARM} {
			if has(a) {
				return a
			}
		}
	case profile.IsX86():
		if has(domain.ArchX86) {
			return domain.ArchX86
		}
	}
	return domain.ArchUnknown
}

// CertificateHash 签名证书的 SHA-256（小写十六进制），优先 v3 > v2 > v1
func CertificateHash(path string) (hash string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("verify %s: %v", path, r)
		}
	}()

	res, verifyErr := apkverifier.Verify(path, nil)
	if len(res.SignerCerts) == 0 {
		if verifyErr == nil {
			verifyErr = errors.New("no signer certificates")
		}
		return "", fmt.Errorf("verify %s: %w", path, verifyErr)
	}

	_, cert := apkverifier.PickBestApkCert(res.SignerCerts)
	if cert == nil {
		return "", fmt.Errorf("verify %s: no usable certificate", path)
	}

	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:]), nil
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '*' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "entry"
	}
	return name
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 256<<10)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
