package datasource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Materialize 把非文件来源复制到 dir 下，返回带回溯引用的文件来源。
// 文件来源原样返回。
func Materialize(ctx context.Context, ds DataSource, dir string) (*File, error) {
	if f, ok := ds.(*File); ok {
		return f, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	rc, err := OpenFallback(ds)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, "source-*"+cacheSuffix(ds))
	if err != nil {
		return nil, fmt.Errorf("create cache file: %w", err)
	}

	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: rc}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("cache %s: %w", ds, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("cache %s: %w", ds, err)
	}

	return NewCachedFile(tmp.Name(), ds), nil
}

// cacheSuffix 保留原始扩展名，检测器依赖它判断 .apk / .dm
func cacheSuffix(ds DataSource) string {
	name := ds.String()
	if i := strings.LastIndex(name, "!/"); i >= 0 {
		name = name[i+2:]
	}
	return strings.ToLower(filepath.Ext(name))
}

// contextReader 在每次读取前检查取消信号
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
