package apkparser

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/apkparser/apktest"
	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

func writeZip(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for entryName, content := range entries {
		ew, err := w.Create(entryName)
		require.NoError(t, err)
		_, err = ew.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestNativeArchitectures 测试从 lib 目录收集 ABI
func TestNativeArchitectures(t *testing.T) {
	path := writeZip(t, t.TempDir(), "app.apk", map[string]string{
		"lib/arm64-v8a/libfoo.so":   "x",
		"lib/arm64-v8a/libbar.so":   "x",
		"lib/armeabi-v7a/libfoo.so": "x",
		"lib/unknown/libfoo.so":     "x",
		"classes.dex":               "x",
	})
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	assert.ElementsMatch(t,
		[]domain.Architecture{domain.ArchARM64, domain.ArchARMv7},
		NativeArchitectures(&zr.Reader))
}

// TestSelectArchitecture 测试 ABI 选择与回退
func TestSelectArchitecture(t *testing.T) {
	arm64Only := device.Profile{ABIs: []string{"arm64-v8a"}}
	armFull := device.Profile{ABIs: []string{"arm64-v8a", "armeabi-v7a"}}
	x86 := device.Profile{ABIs: []string{"x86_64"}}

	tests := []struct {
		name    string
		archs   []domain.Architecture
		profile device.Profile
		want    domain.Architecture
	}{
		{"no native libs", nil, armFull, domain.ArchNone},
		{"device preference order", []domain.Architecture{domain.ArchARMv7, domain.ArchARM64}, armFull, domain.ArchARM64},
		{"arm translation fallback", []domain.Architecture{domain.ArchARMv7}, arm64Only, domain.ArchARMv7},
		{"armeabi fallback", []domain.Architecture{domain.ArchARM, domain.ArchX86}, arm64Only, domain.ArchARM},
		{"x86 fallback", []domain.Architecture{domain.ArchX86, domain.ArchARM64}, x86, domain.ArchX86},
		{"unsupported", []domain.Architecture{domain.ArchMIPS}, armFull, domain.ArchUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectArchitecture(tt.archs, tt.profile))
		})
	}
}

// TestReadManifest_Missing 测试没有清单的压缩包
func TestReadManifest_Missing(t *testing.T) {
	path := writeZip(t, t.TempDir(), "notes.zip", map[string]string{"readme.txt": "hi"})
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	_, err = ReadManifest(&zr.Reader)
	assert.ErrorIs(t, err, ErrMissingManifest)
}

// TestReadManifest_Garbage 测试损坏的二进制清单不会导致崩溃
func TestReadManifest_Garbage(t *testing.T) {
	path := writeZip(t, t.TempDir(), "broken.apk", map[string]string{"AndroidManifest.xml": "not binary xml"})
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	_, err = ReadManifest(&zr.Reader)
	assert.Error(t, err)
}

// TestParseFile_Invalid 测试无法解析的文件返回错误
func TestParseFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.apk")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := NewParser(quietLogger()).ParseFile(context.Background(), datasource.NewFile(path), domain.DataTypeAPK, device.DefaultProfile())
	assert.Error(t, err)
}

// TestExtract 测试条目提取到缓存目录并保留回溯引用
func TestExtract(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "bundle.apks", map[string]string{"splits/base-master.apk": "payload"})
	entry := datasource.NewZipEntryInFile("splits/base-master.apk", datasource.NewFile(path))

	cached, err := Extract(context.Background(), entry, filepath.Join(dir, "cache"))
	require.NoError(t, err)

	data, err := os.ReadFile(cached.Path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, ".apk", filepath.Ext(cached.Path))
	assert.Equal(t, entry, cached.Source())
}

// TestCertificateHash_Unsigned 测试未签名文件
func TestCertificateHash_Unsigned(t *testing.T) {
	path := writeZip(t, t.TempDir(), "unsigned.apk", map[string]string{"classes.dex": "x"})
	hash, err := CertificateHash(path)
	assert.Error(t, err)
	assert.Empty(t, hash)
}

var sampleManifest = apktest.Manifest{
	Package:          "com.example.app",
	SharedUserID:     "com.example.shared",
	VersionCode:      7,
	VersionCodeMajor: 1,
	VersionName:      "2.3.1",
	MinSdk:           24,
	TargetSdk:        34,
	Label:            "Example",
	Permissions:      []string{"android.permission.INTERNET", "android.permission.CAMERA"},
}

// TestReadManifest_Fields 测试二进制清单的字段解析和 versionCodeMajor 合并
func TestReadManifest_Fields(t *testing.T) {
	path := apktest.WriteAPK(t, t.TempDir(), "app.apk", sampleManifest)
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	m, err := ReadManifest(&zr.Reader)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", m.PackageName)
	assert.Empty(t, m.SplitName)
	assert.Equal(t, "com.example.shared", m.SharedUserID)
	assert.Equal(t, int64(1)<<32|7, m.VersionCode)
	assert.Equal(t, "2.3.1", m.VersionName)
	assert.Equal(t, "24", m.MinSdk)
	assert.Equal(t, "34", m.TargetSdk)
	assert.Equal(t, "Example", m.Label)
	assert.Equal(t, []string{"android.permission.INTERNET", "android.permission.CAMERA"}, m.Permissions)
}

// TestReadManifest_NoPackage 测试包名为空的清单
func TestReadManifest_NoPackage(t *testing.T) {
	path := apktest.WriteAPK(t, t.TempDir(), "app.apk", apktest.Manifest{VersionCode: 1})
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	_, err = ReadManifest(&zr.Reader)
	assert.ErrorIs(t, err, ErrMissingPackage)
}

// TestParseFile_Base 测试完整解析主 APK
func TestParseFile_Base(t *testing.T) {
	path := apktest.WriteAPK(t, t.TempDir(), "app.apk", sampleManifest, "armeabi-v7a", "arm64-v8a")
	profile := device.Profile{ABIs: []string{"arm64-v8a", "armeabi-v7a"}}

	entity, err := NewParser(quietLogger()).ParseFile(context.Background(), datasource.NewFile(path), domain.DataTypeAPK, profile)
	require.NoError(t, err)

	base, ok := entity.(*domain.BaseEntity)
	require.True(t, ok)
	assert.Equal(t, "com.example.app", base.PackageName())
	assert.Equal(t, domain.ArchARM64, base.Arch())
	assert.Equal(t, "34", base.TargetSDK())
	assert.Equal(t, "Example", base.Label)
	assert.Equal(t, int64(1)<<32|7, base.VersionCode)
	assert.Equal(t, domain.DataTypeAPK, base.SourceType())
	assert.Empty(t, base.SignatureHash)
}

// TestParseFile_SplitAttribute 测试清单带 split 属性时得到分包
func TestParseFile_SplitAttribute(t *testing.T) {
	path := apktest.WriteAPK(t, t.TempDir(), "whatever.apk", apktest.Manifest{
		Package:     "com.example.app",
		Split:       "config.arm64_v8a",
		VersionCode: 7,
	}, "arm64-v8a")

	entity, err := NewParser(quietLogger()).ParseFile(context.Background(), datasource.NewFile(path), domain.DataTypeAPK, device.Profile{ABIs: []string{"arm64-v8a"}})
	require.NoError(t, err)

	split, ok := entity.(*domain.SplitEntity)
	require.True(t, ok)
	assert.Equal(t, "com.example.app", split.PackageName())
	assert.Equal(t, "config.arm64_v8a", split.SplitName)
	assert.Equal(t, domain.SplitTypeABI, split.Type)
	assert.Equal(t, domain.FilterABI, split.Filter)
	assert.Equal(t, "arm64-v8a", split.ConfigValue)
}

// TestParseZipEntry 测试解析容器中的 APK 条目
func TestParseZipEntry(t *testing.T) {
	dir := t.TempDir()
	container := apktest.WriteZip(t, dir, "bundle.apks",
		apktest.Entry{Name: "splits/base-master.apk", Data: apktest.APK(t, sampleManifest)})

	entity, err := NewParser(quietLogger()).ParseZipEntry(context.Background(), datasource.NewFile(container),
		"splits/base-master.apk", filepath.Join(dir, "cache"), domain.DataTypeAPKS, device.DefaultProfile())
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", entity.PackageName())
	assert.Equal(t, domain.ArchNone, entity.Arch())
	cached, ok := entity.Data().(*datasource.File)
	require.True(t, ok)
	assert.Equal(t, container+"!/splits/base-master.apk", datasource.Origin(cached).String())
}
