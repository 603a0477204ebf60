package detector

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

func newTestDetector() *Detector {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDetector(logger)
}

func writeZip(t *testing.T, name string, entries map[string]string) *datasource.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
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
	return datasource.NewFile(path)
}

var moduleExtra = domain.AnalyseExtra{ModuleFlashEnabled: true}

// TestDetect_Formats 测试各容器格式的识别
func TestDetect_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		entries map[string]string
		want    domain.DataType
	}{
		{
			name:    "single apk",
			file:    "app.apk",
			entries: map[string]string{"AndroidManifest.xml": "x", "classes.dex": "x"},
			want:    domain.DataTypeAPK,
		},
		{
			name: "xapk",
			file: "bundle.xapk",
			entries: map[string]string{
				"manifest.json":        `{"package_name":"com.x","version_code":"12","split_apks":[{"file":"com.x.apk","id":"base"}]}`,
				"com.x.apk":            "x",
				"config.arm64_v8a.apk": "x",
			},
			want: domain.DataTypeXAPK,
		},
		{
			name: "xapk with expansions only",
			file: "game.xapk",
			entries: map[string]string{
				"manifest.json": `{"package_name":"com.game","version_code":3,"expansions":[{"file":"Android/obb/main.obb"}]}`,
				"com.game.apk":  "x",
			},
			want: domain.DataTypeXAPK,
		},
		{
			name: "apkm",
			file: "bundle.apkm",
			entries: map[string]string{
				"info.json": `{"pname":"com.x","versioncode":"12","app_name":"X"}`,
				"base.apk":  "x",
			},
			want: domain.DataTypeAPKM,
		},
		{
			name:    "apks by base name",
			file:    "bundle.apks",
			entries: map[string]string{"base.apk": "x", "split_config.en.apk": "x"},
			want:    domain.DataTypeAPKS,
		},
		{
			name:    "apks by base name ignoring case",
			file:    "bundle.apks",
			entries: map[string]string{"Base.APK": "x", "split_config.en.apk": "x"},
			want:    domain.DataTypeAPKS,
		},
		{
			name:    "apks by upper-case base-master",
			file:    "bundle.zip",
			entries: map[string]string{"splits/Base-Master.apk": "x"},
			want:    domain.DataTypeAPKS,
		},
		{
			name:    "apks by base-master",
			file:    "bundle.zip",
			entries: map[string]string{"splits/base-master.apk": "x", "splits/base-xxhdpi.apk": "x"},
			want:    domain.DataTypeAPKS,
		},
		{
			name:    "apks by toc",
			file:    "bundle.apks",
			entries: map[string]string{"toc.pb": "x"},
			want:    domain.DataTypeAPKS,
		},
		{
			name:    "multi apk zip",
			file:    "apps.zip",
			entries: map[string]string{"one.apk": "x", "two.apk": "x"},
			want:    domain.DataTypeMultiAPKZip,
		},
		{
			name:    "module",
			file:    "module.zip",
			entries: map[string]string{"module.prop": "id=m\nname=M", "system/bin/tool": "x"},
			want:    domain.DataTypeModuleZip,
		},
		{
			name:    "mixed module with manifest",
			file:    "mixed.zip",
			entries: map[string]string{"common/module.prop": "id=m", "AndroidManifest.xml": "x"},
			want:    domain.DataTypeMixedModuleAPK,
		},
		{
			name:    "mixed module bundling apks",
			file:    "mixed.zip",
			entries: map[string]string{"module.prop": "id=m", "apks/app.apk": "x"},
			want:    domain.DataTypeMixedModuleZip,
		},
		{
			name:    "unrelated zip",
			file:    "docs.zip",
			entries: map[string]string{"readme.txt": "x"},
			want:    domain.DataTypeNone,
		},
	}

	d := newTestDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := writeZip(t, tt.file, tt.entries)
			assert.Equal(t, tt.want, d.Detect(file, moduleExtra))
		})
	}
}

// TestDetect_ModuleFlashDisabled 关闭模块刷入时 module.prop 被忽略
func TestDetect_ModuleFlashDisabled(t *testing.T) {
	d := newTestDetector()

	module := writeZip(t, "module.zip", map[string]string{"module.prop": "id=m"})
	assert.Equal(t, domain.DataTypeNone, d.Detect(module, domain.AnalyseExtra{}))

	mixed := writeZip(t, "mixed.zip", map[string]string{"module.prop": "id=m", "AndroidManifest.xml": "x"})
	assert.Equal(t, domain.DataTypeAPK, d.Detect(mixed, domain.AnalyseExtra{}))
}

// TestDetect_Idempotent 同一来源多次检测结果一致
func TestDetect_Idempotent(t *testing.T) {
	d := newTestDetector()
	file := writeZip(t, "bundle.apks", map[string]string{"base.apk": "x"})

	first := d.Detect(file, moduleExtra)
	second := d.Detect(file, moduleExtra)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.DataTypeAPKS, first)
}

// TestDetect_NonZip 测试非 zip 文件
func TestDetect_NonZip(t *testing.T) {
	d := newTestDetector()
	dir := t.TempDir()

	apk := filepath.Join(dir, "broken.apk")
	require.NoError(t, os.WriteFile(apk, []byte("garbage"), 0o644))
	assert.Equal(t, domain.DataTypeAPK, d.Detect(datasource.NewFile(apk), moduleExtra))

	axml := filepath.Join(dir, "manifest.bin")
	require.NoError(t, os.WriteFile(axml, append([]byte{0x03, 0x00, 0x08, 0x00}, bytes.Repeat([]byte{0}, 16)...), 0o644))
	assert.Equal(t, domain.DataTypeAPK, d.Detect(datasource.NewFile(axml), moduleExtra))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello world"), 0o644))
	assert.Equal(t, domain.DataTypeNone, d.Detect(datasource.NewFile(txt), moduleExtra))

	missing := datasource.NewFile(filepath.Join(dir, "missing.apk"))
	assert.Equal(t, domain.DataTypeNone, d.Detect(missing, moduleExtra))
}

// TestDetect_DexMetadata 单独的 .dm 文件按单文件处理
func TestDetect_DexMetadata(t *testing.T) {
	dm := writeZip(t, "base.dm", map[string]string{"primary.prof": "x"})
	assert.Equal(t, domain.DataTypeAPK, newTestDetector().Detect(dm, moduleExtra))
}

// TestDetect_KnownTypeAndStreams 已知格式直接返回，非文件来源返回 NONE
func TestDetect_KnownTypeAndStreams(t *testing.T) {
	d := newTestDetector()
	stream := datasource.NewRawStream("dl", bytes.NewReader(nil), 0)

	assert.Equal(t, domain.DataTypeXAPK, d.Detect(stream, domain.AnalyseExtra{DataType: domain.DataTypeXAPK}))
	assert.Equal(t, domain.DataTypeNone, d.Detect(stream, moduleExtra))
}
