// Package datasource 提供分层的字节来源抽象：本地文件、文件内的 zip 条目、
// 流式扫描得到的 zip 条目，以及只能读取一次的原始流。
package datasource

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotFound 路径或条目不存在
	ErrNotFound = errors.New("data source not found")
	// ErrConsumed 原始流已经被读取过
	ErrConsumed = errors.New("raw stream already consumed")
)

// DataSource 可读取的字节来源
//
// 每次 Open 都返回独立的流，调用方负责关闭。Source 返回的是只读的回溯引用，
// 仅用于回退打开和定位最初的来源，不参与生命周期管理。
type DataSource interface {
	Open() (io.ReadCloser, error)
	// Size 声明的长度，无法廉价获取时返回 0 或 -1
	Size() int64
	Source() DataSource
	// String 用于日志和去重兜底的标识
	String() string
}

// Origin 沿 Source 链回溯到最初的来源
func Origin(ds DataSource) DataSource {
	if ds == nil {
		return nil
	}
	cur := ds
	for {
		next := cur.Source()
		if next == nil {
			return cur
		}
		cur = next
	}
}

// OpenFallback 先尝试打开 ds 本身，失败时改为打开它的最初来源
func OpenFallback(ds DataSource) (io.ReadCloser, error) {
	rc, err := ds.Open()
	if err == nil {
		return rc, nil
	}

	origin := Origin(ds)
	if origin == ds {
		return nil, err
	}

	rc, fallbackErr := origin.Open()
	if fallbackErr != nil {
		return nil, fmt.Errorf("open %s: %w (fallback %s: %v)", ds, err, origin, fallbackErr)
	}
	return rc, nil
}

// multiCloser 关闭条目流的同时关闭其所属的容器
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
