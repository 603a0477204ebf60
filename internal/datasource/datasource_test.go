package datasource

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip 在临时目录生成 zip 文件
func writeZip(t *testing.T, name string, entries map[string]string) string {
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
	return path
}

func readAll(t *testing.T, ds DataSource) string {
	t.Helper()
	rc, err := ds.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// TestFile_OpenAndSize 测试文件来源
func TestFile_OpenAndSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	f := NewFile(path)
	assert.Equal(t, int64(5), f.Size())
	assert.Equal(t, "hello", readAll(t, f))
	assert.Nil(t, f.Source())
	assert.Equal(t, f, Origin(f))
}

// TestFile_NotFound 测试文件不存在
func TestFile_NotFound(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.apk"))

	_, err := f.Open()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), f.Size())
}

// TestZipEntryInFile 测试 zip 条目来源
func TestZipEntryInFile(t *testing.T) {
	path := writeZip(t, "bundle.apks", map[string]string{
		"base.apk":                   "base-content",
		"split_config.arm64_v8a.apk": "split-content",
	})

	entry := NewZipEntryInFile("base.apk", NewFile(path))
	assert.Equal(t, "base-content", readAll(t, entry))
	assert.Equal(t, int64(len("base-content")), entry.Size())
	assert.Nil(t, entry.Source())
	assert.Equal(t, path+"!/base.apk", entry.String())

	h, err := entry.Header()
	require.NoError(t, err)
	assert.NotZero(t, h.CRC32)

	missing := NewZipEntryInFile("nope.apk", NewFile(path))
	_, err = missing.Open()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), missing.Size())
}

// TestZipEntryInStream 测试流式扫描定位条目
func TestZipEntryInStream(t *testing.T) {
	path := writeZip(t, "bundle.zip", map[string]string{
		"a.apk": strings.Repeat("a", 4096),
		"b.apk": "second",
		"c.txt": strings.Repeat("xyz", 1000),
	})

	entry := NewZipEntryInStream("b.apk", NewFile(path))
	assert.Equal(t, "second", readAll(t, entry))
	assert.Equal(t, int64(-1), entry.Size())

	last := NewZipEntryInStream("c.txt", NewFile(path))
	assert.Equal(t, strings.Repeat("xyz", 1000), readAll(t, last))

	_, err := NewZipEntryInStream("missing", NewFile(path)).Open()
	assert.ErrorIs(t, err, ErrNotFound)

	first := NewZipEntryInStream("a.apk", NewFile(path))
	assert.Equal(t, strings.Repeat("a", 4096), readAll(t, first))
	assert.Equal(t, path+"!/a.apk", first.String())
}

// TestRawStream_SingleUse 测试原始流只能打开一次
func TestRawStream_SingleUse(t *testing.T) {
	s := NewRawStream("download", bytes.NewReader([]byte("data")), 4)
	assert.Equal(t, int64(4), s.Size())
	assert.Equal(t, "data", readAll(t, s))

	_, err := s.Open()
	assert.ErrorIs(t, err, ErrConsumed)
}

// TestMaterialize_KeepsOrigin 测试缓存到本地后仍能回溯到原始来源
func TestMaterialize_KeepsOrigin(t *testing.T) {
	zipPath := writeZip(t, "outer.zip", map[string]string{"inner.apk": "payload"})
	stream := NewZipEntryInStream("inner.apk", NewFile(zipPath))

	cached, err := Materialize(context.Background(), stream, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ".apk", filepath.Ext(cached.Path))
	assert.Equal(t, "payload", readAll(t, cached))
	assert.Equal(t, stream, Origin(cached))
}

// TestMaterialize_Cancelled 测试取消信号
func TestMaterialize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewRawStream("download", bytes.NewReader([]byte("data")), 4)
	_, err := Materialize(ctx, s, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

// TestOpenFallback 测试主来源失败时回退到最初来源
func TestOpenFallback(t *testing.T) {
	origin := filepath.Join(t.TempDir(), "origin.apk")
	require.NoError(t, os.WriteFile(origin, []byte("origin"), 0o644))

	cached := NewCachedFile(filepath.Join(t.TempDir(), "gone.apk"), NewFile(origin))
	rc, err := OpenFallback(cached)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "origin", string(data))

	_, err = OpenFallback(NewFile(filepath.Join(t.TempDir(), "none")))
	assert.ErrorIs(t, err, ErrNotFound)
}
